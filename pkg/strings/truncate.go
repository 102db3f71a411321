package strings

import (
	"strings"
)

// DefaultCellMaxLen is the default maximum length for values rendered
// into table cells, long enough for a typical environment URL.
const DefaultCellMaxLen = 60

// MinTruncateLen is the minimum maxLen value for TruncateCell.
// Values smaller than this would not leave room for meaningful content plus "...".
const MinTruncateLen = 4

// TruncateCell truncates a string to maxLen characters and ensures
// single-line output. Newlines and runs of whitespace collapse to
// single spaces, and "..." marks a truncation.
//
// The function operates on runes rather than bytes so a multi-byte
// character is never cut in half.
func TruncateCell(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
