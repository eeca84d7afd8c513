// Package textutil provides the text normalization primitives shared by the
// intent router and the catalog matching inside tools. Matching is
// intentionally simple and deterministic: lowercase, strip punctuation,
// whole-token comparison with a short-prefix allowance for inflections.
package textutil

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^a-z0-9\s-]`)

// Normalize lowercases text and replaces punctuation with spaces.
func Normalize(text string) string {
	return strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(text), " "))
}

// Tokenize splits normalized text into non-empty tokens.
func Tokenize(text string) []string {
	return strings.Fields(Normalize(text))
}

// TokenMatch reports whether tok refers to the same word as any entry in
// tokens, allowing a prefix match for inflections ("dragons" ~ "dragon").
// The shorter side of a prefix match needs at least three characters so
// stray letters never match.
func TokenMatch(tokens []string, tok string) bool {
	for _, t := range tokens {
		if sameWord(t, tok) {
			return true
		}
	}
	return false
}

func sameWord(a, b string) bool {
	if a == b {
		return true
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	return len(a) >= 4 && len(b) >= 3 && strings.HasPrefix(a, b)
}

// SplitTags splits a delimited tag string (";", ",", "|", "/") into trimmed
// non-empty items.
func SplitTags(value string) []string {
	if value == "" {
		return nil
	}
	replaced := strings.NewReplacer(",", ";", "|", ";", "/", ";").Replace(value)
	var out []string
	for _, item := range strings.Split(replaced, ";") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ContainsNormalized reports whether needle appears in haystack after both
// are normalized. Empty needles never match.
func ContainsNormalized(haystack, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Normalize(haystack), n)
}
