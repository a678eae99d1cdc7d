// Package utils holds small helpers shared by several shelf packages.
package utils

// Truncate cuts s to maxLen runes and marks the cut with an ellipsis.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
