package textclf

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it into alphanumeric tokens.
// Single-character tokens carry no signal for this task and are dropped.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}
