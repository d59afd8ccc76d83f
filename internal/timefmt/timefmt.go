package timefmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// InvalidTime and InvalidDate are returned when a timestamp does not parse.
const (
	InvalidTime = "Invalid time"
	InvalidDate = "Invalid date"
)

// Zero is the rendering of any duration shorter than a minute.
const Zero = "0m"

var (
	clockRe   = regexp.MustCompile(`(\d+):(\d+):(\d+)`)
	dayRe     = regexp.MustCompile(`(\d+)\s+days?`)
	secondsRe = regexp.MustCompile(`^\s*(\d+)\s*seconds?\s*$`)
)

// ParseTimestamp accepts RFC3339 (with or without fractional seconds) and the
// "2006-01-02 15:04:05" layout databases commonly return.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatClock renders t as local 12-hour clock time, e.g. "2:30 PM".
func FormatClock(t time.Time) string {
	if t.IsZero() {
		return InvalidTime
	}
	return t.Local().Format("3:04 PM")
}

// FormatClockWithSeconds renders t as "2:30:45 PM".
func FormatClockWithSeconds(t time.Time) string {
	if t.IsZero() {
		return InvalidTime
	}
	return t.Local().Format("3:04:05 PM")
}

// FormatDateTime renders t as "12/25/2023 2:30 PM".
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return InvalidDate
	}
	return t.Local().Format("1/2/2006") + " " + FormatClock(t)
}

// FormatClockTime parses raw and renders it with FormatClock.
func FormatClockTime(raw string) string {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return InvalidTime
	}
	return FormatClock(t)
}

// ParseInterval converts a stored duration text into whole seconds. Accepted
// forms are "", "<N> seconds", "HH:MM:SS" and "<N> day(s) HH:MM:SS".
func ParseInterval(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	if m := secondsRe.FindStringSubmatch(raw); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	m := clockRe.FindStringSubmatch(raw)
	if m == nil {
		if d := dayRe.FindStringSubmatch(raw); d != nil && strings.TrimSpace(dayRe.ReplaceAllString(raw, "")) == "" {
			days, _ := strconv.ParseInt(d[1], 10, 64)
			return days * 86400, true
		}
		return 0, false
	}
	h, _ := strconv.ParseInt(m[1], 10, 64)
	mins, _ := strconv.ParseInt(m[2], 10, 64)
	sec, _ := strconv.ParseInt(m[3], 10, 64)
	total := h*3600 + mins*60 + sec
	if d := dayRe.FindStringSubmatch(raw); d != nil {
		days, _ := strconv.ParseInt(d[1], 10, 64)
		total += days * 86400
	}
	return total, true
}

// FormatDuration renders a stored duration text. Input that is not one of the
// ParseInterval forms is returned unchanged.
func FormatDuration(raw string) string {
	secs, ok := ParseInterval(raw)
	if !ok {
		return raw
	}
	return FormatSeconds(secs)
}

// FormatSeconds renders only the non-zero days, hours and minutes. Anything
// under a minute, including negative input, renders as Zero.
func FormatSeconds(total int64) string {
	if total < 60 {
		return Zero
	}
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}

// ElapsedSeconds is end-start floored to whole seconds, never negative.
func ElapsedSeconds(start, end time.Time) int64 {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	d := int64(end.Sub(start) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// CalculateElapsed renders the time between start and end. A zero end means now.
func CalculateElapsed(start, end time.Time) string {
	if end.IsZero() {
		end = time.Now()
	}
	return FormatSeconds(ElapsedSeconds(start, end))
}
