// internal/app/system/normalize/normalize.go
// Package normalize canonicalizes names and codes supplied by clients.
package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/groupdrop/internal/app/system/htmlsanitize"
)

const (
	// MaxNameRunes bounds member and group display names.
	MaxNameRunes = 64
	// MaxFileNameRunes bounds original filenames shown to members.
	MaxFileNameRunes = 255
)

// Name trims s, strips markup and collapses runs of whitespace to a
// single space. Case is preserved. Length is left to the caller, see
// NameTooLong.
func Name(s string) string {
	return strings.Join(strings.Fields(htmlsanitize.Text(s)), " ")
}

// NameTooLong reports whether a normalized name exceeds MaxNameRunes.
func NameTooLong(s string) bool {
	return utf8.RuneCountInString(s) > MaxNameRunes
}

// Code trims surrounding whitespace. Codes are case-sensitive.
func Code(s string) string {
	return strings.TrimSpace(s)
}

// FileName returns the final path element of s with markup removed.
// Both slash styles are treated as separators since clients on any OS
// may send a full path.
func FileName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(htmlsanitize.Text(s))
	if s == "." || s == ".." {
		return ""
	}
	return truncate(s, MaxFileNameRunes)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
