package attendee

import (
	"math"
	"time"

	"eventcheckin/internal/timefmt"
)

// Summary aggregates dashboard figures over a set of attendees.
type Summary struct {
	Total            int             `json:"total"`
	CheckedIn        int             `json:"checked_in"`
	NotCheckedIn     int             `json:"not_checked_in"`
	CheckInRate      int             `json:"check_in_rate"`
	CurrentlyInside  int             `json:"currently_inside"`
	Completed        int             `json:"completed"`
	TotalTimeSpent   timefmt.Seconds `json:"total_time_spent"`
	TotalTimeDisplay string          `json:"total_time_display"`
}

// Summarize counts statuses and adds up stored time plus the running
// sessions of everyone currently inside.
func Summarize(list []Attendee, now time.Time) Summary {
	var s Summary
	var secs int64
	for _, a := range list {
		s.Total++
		if a.CheckedIn {
			s.CheckedIn++
		}
		switch a.CurrentStatus {
		case In:
			s.CurrentlyInside++
		case Out:
			s.Completed++
		}
		secs += int64(a.TotalTimeSpent) + a.SessionSeconds(now)
	}
	s.NotCheckedIn = s.Total - s.CheckedIn
	if s.Total > 0 {
		s.CheckInRate = int(math.Round(float64(s.CheckedIn) * 100 / float64(s.Total)))
	}
	s.TotalTimeSpent = timefmt.Seconds(secs)
	s.TotalTimeDisplay = timefmt.FormatSeconds(secs)
	return s
}
