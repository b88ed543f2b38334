package domain

import (
	"strings"
	"unicode"
)

// SanitizeText makes extracted or generated text storable: invalid UTF-8
// becomes U+FFFD and control characters other than tab, newline and
// carriage return become spaces. Postgres TEXT rejects NUL outright.
func SanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t', r == '\n', r == '\r':
			return r
		case unicode.IsControl(r):
			return ' '
		default:
			return r
		}
	}, s)
}
