// internal/app/system/htmlsanitize/htmlsanitize.go
// Package htmlsanitize strips markup from user-supplied text before it is
// stored in a group or pushed to other members.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every element and attribute. The policy is safe for
// concurrent use once built.
var strict = bluemonday.StrictPolicy()

// Text returns s with all HTML tags removed and entities decoded, so the
// result reads the way the user typed it minus any markup.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return html.UnescapeString(strict.Sanitize(s))
}

// IsPlainText reports whether s contains no markup that Text would remove.
func IsPlainText(s string) bool {
	if !strings.ContainsAny(s, "<>") {
		return true
	}
	return Text(s) == s
}
