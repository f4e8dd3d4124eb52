// Package timecode converts caption timestamps to second offsets and back.
package timecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseStrict parses "H:MM:SS", "H:MM:SS.fff" or "H:MM:SS,fff" into seconds.
// Fields past the third are ignored. ok is false when the hours, minutes or
// seconds field is missing or not numeric.
func ParseStrict(text string) (seconds float64, ok bool) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) < 3 {
		return 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}
	s, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(parts[2]), ",", ".", 1), 64)
	if err != nil || math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, false
	}
	return float64(h)*3600 + float64(m)*60 + s, true
}

// Parse is ParseStrict with failures mapped to 0. A 0 result is therefore
// ambiguous; callers that need to tell "unparseable" from midnight use ParseStrict.
func Parse(text string) float64 {
	v, _ := ParseStrict(text)
	return v
}

// Format renders seconds as MM:SS. Minutes are floored and the remainder is
// rounded half away from zero; a remainder that rounds to 60 carries over.
func Format(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "00:00"
	}
	minutes := int64(math.Floor(seconds / 60))
	rest := int64(math.Round(math.Mod(seconds, 60)))
	if rest == 60 {
		minutes++
		rest = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes, rest)
}

// FormatPtr is Format for optional values; nil renders as "00:00".
func FormatPtr(seconds *float64) string {
	if seconds == nil {
		return "00:00"
	}
	return Format(*seconds)
}
