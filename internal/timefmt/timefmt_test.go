package timefmt

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "0m"},
		{"0 seconds", "0m"},
		{"00:00:00", "0m"},
		{"45 seconds", "0m"},
		{"3661 seconds", "1h 1m"},
		{"3900 seconds", "1h 5m"},
		{"1 second", "0m"},
		{"01:30:45", "1h 30m"},
		{"00:02:10", "2m"},
		{"1 day 02:30:45", "1d 2h 30m"},
		{"2 days 00:00:00", "2d"},
		{"3 days", "3d"},
		{"soon-ish", "soon-ish"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDurationIsStable(t *testing.T) {
	for _, secs := range []int64{0, 59, 60, 3599, 3661, 86399, 90061} {
		raw := Seconds(secs).String()
		first := FormatDuration(raw)
		second := FormatDuration(raw)
		if first != second {
			t.Fatalf("rendering of %q changed: %q then %q", raw, first, second)
		}
		back, ok := ParseInterval(raw)
		if !ok || back != secs {
			t.Fatalf("ParseInterval(%q) = %d, %v", raw, back, ok)
		}
	}
}

func TestCalculateElapsedNeverNegative(t *testing.T) {
	start := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

	t.Run("end before start", func(t *testing.T) {
		if got := CalculateElapsed(start, start.Add(-time.Hour)); got != Zero {
			t.Errorf("got %q, want %q", got, Zero)
		}
	})
	t.Run("equal", func(t *testing.T) {
		if got := CalculateElapsed(start, start); got != Zero {
			t.Errorf("got %q, want %q", got, Zero)
		}
	})
	t.Run("floors partial seconds", func(t *testing.T) {
		if got := ElapsedSeconds(start, start.Add(1999*time.Millisecond)); got != 1 {
			t.Errorf("got %d, want 1", got)
		}
	})
	t.Run("hours and minutes", func(t *testing.T) {
		if got := CalculateElapsed(start, start.Add(65*time.Minute)); got != "1h 5m" {
			t.Errorf("got %q", got)
		}
	})
}

func TestFormatClock(t *testing.T) {
	ts := time.Date(2023, 12, 25, 14, 30, 45, 0, time.Local)
	if got := FormatClock(ts); got != "2:30 PM" {
		t.Errorf("FormatClock = %q", got)
	}
	if got := FormatClockWithSeconds(ts); got != "2:30:45 PM" {
		t.Errorf("FormatClockWithSeconds = %q", got)
	}
	if got := FormatDateTime(ts); got != "12/25/2023 2:30 PM" {
		t.Errorf("FormatDateTime = %q", got)
	}
	if got := FormatClockTime("not a time"); got != InvalidTime {
		t.Errorf("FormatClockTime(invalid) = %q", got)
	}
	if got := FormatClockTime(ts.Format(time.RFC3339)); got != "2:30 PM" {
		t.Errorf("FormatClockTime(rfc3339) = %q", got)
	}
}

func TestSecondsJSON(t *testing.T) {
	b, err := json.Marshal(Seconds(3900))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"3900 seconds"` {
		t.Fatalf("marshal = %s", b)
	}

	for raw, want := range map[string]Seconds{
		`"01:05:00"`:       3900,
		`"1 day 00:00:10"`: 86410,
		`"12 seconds"`:     12,
		`42`:               42,
		`null`:             0,
	} {
		var s Seconds
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if s != want {
			t.Errorf("unmarshal %s = %d, want %d", raw, s, want)
		}
	}

	var s Seconds
	if err := json.Unmarshal([]byte(`"whenever"`), &s); err == nil {
		t.Error("expected error for unparseable interval")
	}
}

func TestSecondsScan(t *testing.T) {
	var s Seconds
	for src, want := range map[any]Seconds{
		int64(7):   7,
		"02:00:00": 7200,
		"15":       15,
	} {
		if err := s.Scan(src); err != nil {
			t.Fatalf("Scan(%v): %v", src, err)
		}
		if s != want {
			t.Errorf("Scan(%v) = %d, want %d", src, s, want)
		}
	}
	if err := s.Scan([]byte("3 seconds")); err != nil || s != 3 {
		t.Errorf("Scan([]byte) = %d, %v", s, err)
	}
}
