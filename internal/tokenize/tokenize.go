// Package tokenize normalises free text into comparable word tokens.
package tokenize

import (
	"strings"
	"unicode"
)

// Words case-folds text, splits on whitespace and strips punctuation and
// symbols from every word. Words that are empty after stripping are dropped.
func Words(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.Map(func(r rune) rune {
			if unicode.IsPunct(r) || unicode.IsSymbol(r) {
				return -1
			}
			return unicode.ToLower(r)
		}, f)
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// Set returns the distinct tokens of words.
func Set(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
