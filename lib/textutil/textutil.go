package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases a name and strips all whitespace, it is used to
// compare header names like "GTIN " and "gtin".
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t\ufeff")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// MatchName reports whether the normalized name equals one of the
// (already normalized) matchers.
func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if name == NormalizeName(m) {
			return true
		}
	}
	return false
}

// NormalizeText drops non-printable characters, collapses runs of whitespace
// into a single space and lowercases the result.
func NormalizeText(text string) string {
	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, text)
	text = whitespaceRegex.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	return strings.ToLower(text)
}

// ContainsPhrase reports whether text contains phrase after both are
// normalized with NormalizeText. An empty phrase never matches.
func ContainsPhrase(text, phrase string) bool {
	phrase = NormalizeText(phrase)
	if phrase == "" {
		return false
	}
	return strings.Contains(NormalizeText(text), phrase)
}
