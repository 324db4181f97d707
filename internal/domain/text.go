package domain

import (
	"strings"
	"unicode/utf8"

	"tourly-backend/pkg/sanitize"
)

const (
	// MaxMessageLength is the longest accepted message text, in characters, after trimming
	MaxMessageLength = 2000
	// PreviewLength bounds the conversation's last-message preview
	PreviewLength = 200
)

// NormalizeText strips control characters other than newlines and tabs, then
// trims surrounding whitespace
func NormalizeText(text string) string {
	return strings.TrimSpace(sanitize.StripControl(text))
}

// TextLength counts characters rather than bytes
func TextLength(text string) int {
	return utf8.RuneCountInString(text)
}

// TruncatePreview cuts text to at most n characters
func TruncatePreview(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}
