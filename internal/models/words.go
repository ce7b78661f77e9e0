package models

import "strings"

// SplitWords splits text into fragments that concatenate back to text, each
// word keeping the whitespace that follows it.
func SplitWords(text string) []string {
	var words []string
	start := 0
	inSpace := true
	for i, r := range text {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if !isSpace && inSpace && i > start && strings.TrimSpace(text[start:i]) != "" {
			words = append(words, text[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(text) {
		words = append(words, text[start:])
	}
	return words
}
