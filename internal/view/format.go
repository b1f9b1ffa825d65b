package view

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sydlexius/plexrenamer/internal/session"
)

// Truncate shortens s to at most n runes, marking the cut with "…".
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// Pad right-pads s with spaces to n runes, truncating if longer.
func Pad(s string, n int) string {
	s = Truncate(s, n)
	if c := utf8.RuneCountInString(s); c < n {
		s += strings.Repeat(" ", n-c)
	}
	return s
}

// Bar renders a text progress bar of the given inner width.
func Bar(percent, width int) string {
	if width < 1 {
		width = 1
	}
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// Checkbox renders a selection marker.
func Checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

// AggregateBox renders the "select all" marker.
func AggregateBox(s session.CheckState) string {
	switch s {
	case session.Checked:
		return "[x]"
	case session.Indeterminate:
		return "[-]"
	default:
		return "[ ]"
	}
}

// Counts formats the file and operation counters.
func Counts(st session.Stats) string {
	return fmt.Sprintf("%d files, %d operations", st.FilesCount, st.OperationsCount)
}
