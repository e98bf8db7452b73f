// Package tokenizer turns message text into index terms. It lower-cases the
// input and extracts maximal runs of word characters; everything else is a
// separator. There is no stemming and no stop-word removal, so every word a
// user can type is searchable.
package tokenizer

import (
	"strings"
	"unicode"
)

// IsWordRune reports whether r belongs to a token: any Unicode letter (L*),
// any Unicode number (N*), or the underscore.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Tokenize returns the distinct tokens of text in order of first
// appearance. Empty or separator-only input yields an empty slice.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !IsWordRune(r)
	})
	if len(words) == 0 {
		return []string{}
	}
	tokens := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		tokens = append(tokens, word)
	}
	return tokens
}
