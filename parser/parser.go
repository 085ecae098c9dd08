package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// CollapseWhitespace trims the text and folds every whitespace run into a single space.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ContainsPhrase reports whether phrase occurs in text after whitespace collapsing.
// Matching is exact and case-sensitive.
func ContainsPhrase(text, phrase string) bool {
	phrase = CollapseWhitespace(phrase)
	if phrase == "" {
		return false
	}
	return strings.Contains(CollapseWhitespace(text), phrase)
}

// NormalizeIdentifier removes surrounding and embedded spacing from an identifier.
func NormalizeIdentifier(value string) string {
	return strings.Join(strings.Fields(value), "")
}

// ValidateIdentifier ensures the identifier is non-empty and numeric.
func ValidateIdentifier(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is empty", name)
	}
	for _, r := range value {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return fmt.Errorf("%s must contain only digits", name)
		}
	}
	return nil
}

// MaskIdentifier hides all but the last four characters.
func MaskIdentifier(value string) string {
	if value == "" {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}
