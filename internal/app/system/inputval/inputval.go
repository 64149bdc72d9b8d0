// internal/app/system/inputval/inputval.go
// Package inputval validates request payloads using struct tags.
//
// Fields are declared with a `validate` tag for the rules and an optional
// `label` tag used in messages:
//
//	type createRequest struct {
//	    GroupCode string `validate:"required,groupcode" label:"Group code"`
//	}
//
// Besides the stock rules this package registers:
//   - groupcode: 1-64 characters from [A-Za-z0-9_-]
//   - plaintext: no HTML markup
package inputval

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/dalemusser/groupdrop/internal/app/system/htmlsanitize"
	"github.com/go-playground/validator/v10"
)

var groupCodeRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// IsValidGroupCode reports whether code can name a group. Codes also name
// storage namespaces, so the alphabet excludes separators and dots.
func IsValidGroupCode(code string) bool {
	return groupCodeRE.MatchString(code)
}

// FieldError is a single validation failure.
type FieldError struct {
	Field   string
	Message string
}

// Result collects the failures from one Validate call.
type Result struct {
	Errors []FieldError
}

// HasErrors reports whether validation failed.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// First returns the first message, or "" if there are none.
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r *Result) All() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

var (
	once sync.Once
	v    *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			if label := fld.Tag.Get("label"); label != "" {
				return label
			}
			return fld.Name
		})
		_ = v.RegisterValidation("groupcode", func(fl validator.FieldLevel) bool {
			return IsValidGroupCode(fl.Field().String())
		})
		_ = v.RegisterValidation("plaintext", func(fl validator.FieldLevel) bool {
			return htmlsanitize.IsPlainText(fl.Field().String())
		})
	})
	return v
}

// Validate checks s (a struct or pointer to struct) against its tags.
func Validate(s any) *Result {
	res := &Result{}
	err := instance().Struct(s)
	if err == nil {
		return res
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		res.Errors = append(res.Errors, FieldError{Message: err.Error()})
		return res
	}
	for _, fe := range verrs {
		res.Errors = append(res.Errors, FieldError{
			Field:   fe.StructField(),
			Message: message(fe),
		})
	}
	return res
}

func message(fe validator.FieldError) string {
	label := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", label)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters.", label, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s.", label, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s.", label, fe.Param())
	case "groupcode":
		return fmt.Sprintf("%s may only contain letters, digits, '-' and '_' (1-64 characters).", label)
	case "plaintext":
		return fmt.Sprintf("%s must not contain markup.", label)
	default:
		return fmt.Sprintf("%s is invalid.", label)
	}
}
