package sanitize

import (
	"strings"
	"unicode"
)

// StripControl removes control characters from input, keeping newlines and tabs
func StripControl(input string) string {
	if strings.IndexFunc(input, isStripped) < 0 {
		return input
	}

	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		if !isStripped(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func isStripped(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}
