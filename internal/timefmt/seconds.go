package timefmt

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Seconds is an accumulated duration in whole seconds. It is stored as an
// integer and travels as "<N> seconds" text for compatibility with older
// clients that kept interval strings.
type Seconds int64

// SecondsOf floors d to whole seconds.
func SecondsOf(d time.Duration) Seconds {
	if d <= 0 {
		return 0
	}
	return Seconds(d / time.Second)
}

func (s Seconds) Duration() time.Duration { return time.Duration(s) * time.Second }

func (s Seconds) String() string { return strconv.FormatInt(int64(s), 10) + " seconds" }

// Human renders s with FormatSeconds.
func (s Seconds) Human() string { return FormatSeconds(int64(s)) }

func (s Seconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Seconds) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = 0
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*s = Seconds(n)
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("total_time_spent: %w", err)
	}
	parsed, ok := ParseInterval(raw)
	if !ok {
		return fmt.Errorf("total_time_spent: unrecognised interval %q", raw)
	}
	*s = Seconds(parsed)
	return nil
}

// Value stores s as an integer column.
func (s Seconds) Value() (driver.Value, error) { return int64(s), nil }

// Scan reads integer columns and, for rows written before the column became
// numeric, interval text.
func (s *Seconds) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = 0
	case int64:
		*s = Seconds(v)
	case float64:
		*s = Seconds(int64(v))
	case []byte:
		return s.scanText(string(v))
	case string:
		return s.scanText(v)
	default:
		return fmt.Errorf("timefmt: cannot scan %T into Seconds", src)
	}
	return nil
}

func (s *Seconds) scanText(raw string) error {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = Seconds(n)
		return nil
	}
	parsed, ok := ParseInterval(raw)
	if !ok {
		return fmt.Errorf("timefmt: unrecognised interval %q", raw)
	}
	*s = Seconds(parsed)
	return nil
}
