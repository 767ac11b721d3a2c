package matcher

import (
	"strings"
	"unicode"
)

// Normalize lower-cases text, drops every character that is not a letter, digit,
// underscore, whitespace or double quote, and collapses whitespace runs to one space.
// It is applied identically to indexed record text and to queries, and is idempotent.
func Normalize(text string) string {
	text = strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsNumber(r), r == '_', r == '"':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
