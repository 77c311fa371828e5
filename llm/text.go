package llm

import (
	"strings"
	"unicode/utf8"
)

// Normalize lower-cases and trims a string for comparison
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FuzzyMatch reports case-insensitive substring containment in either direction
func FuzzyMatch(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return strings.Contains(nb, na) || strings.Contains(na, nb)
}

// Prefix returns at most n characters of s without splitting a rune
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// JoinPages concatenates page texts with newlines
func JoinPages(pages []Page) string {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n")
}
