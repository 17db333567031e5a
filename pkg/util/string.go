package util

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// Truncate shortens s to at most max runes, ending the cut string with "...".
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-len(ellipsis)]) + ellipsis
}

// Preview collapses whitespace and truncates, for log lines
func Preview(s string, max int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), max)
}
