// internal/app/features/errors/errors.go
// Package errors maps domain errors to HTTP responses. Every JSON endpoint
// reports failures through ErrorLogger so the status table lives in one
// place.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	groupstore "github.com/dalemusser/groupdrop/internal/app/store/groups"
	"github.com/dalemusser/groupdrop/internal/app/system/filestore"
	"github.com/dalemusser/groupdrop/internal/app/system/reassembly"
	"go.uber.org/zap"
)

// ErrTooLarge is reported when a request body exceeds its limit.
var ErrTooLarge = stderrors.New("file is too large")

// Status returns the HTTP status for err.
func Status(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.As(err, &tooLarge), stderrors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case stderrors.Is(err, groupstore.ErrInvalidArgument),
		stderrors.Is(err, reassembly.ErrInvalidFragment),
		stderrors.Is(err, reassembly.ErrIndexOutOfRange),
		stderrors.Is(err, reassembly.ErrNotJoined),
		stderrors.Is(err, filestore.ErrInvalidName):
		return http.StatusBadRequest
	case stderrors.Is(err, groupstore.ErrNotFound),
		stderrors.Is(err, filestore.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, groupstore.ErrDuplicateCode),
		stderrors.Is(err, groupstore.ErrNameTaken),
		stderrors.Is(err, groupstore.ErrGroupFull),
		stderrors.Is(err, reassembly.ErrDuplicateChunk),
		stderrors.Is(err, reassembly.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text for err. Internal failures are
// not described beyond a generic message.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, groupstore.ErrNotFound):
		return "Group not found"
	case stderrors.Is(err, filestore.ErrNotFound):
		return "File not found"
	case stderrors.Is(err, reassembly.ErrStorage):
		return "Failed to store file"
	}
	switch Status(err) {
	case http.StatusBadRequest:
		msg := err.Error()
		for _, sentinel := range []error{groupstore.ErrInvalidArgument, reassembly.ErrInvalidFragment} {
			msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
		}
		return msg
	case http.StatusConflict:
		return err.Error()
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge.Error()
	default:
		return "Internal server error"
	}
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorLogger writes error responses and logs the ones that indicate a
// server-side fault.
type ErrorLogger struct {
	Log *zap.Logger
}

// NewErrorLogger constructs an ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	return &ErrorLogger{Log: logger}
}

// Write responds with {"error": message} and the status mapped from err.
func (e *ErrorLogger) Write(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		e.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else {
		e.Log.Debug("request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	JSON(w, status, map[string]string{"error": Message(err)})
}
