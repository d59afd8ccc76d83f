package checkin

import (
	"fmt"
	"strings"

	"eventcheckin/internal/attendee"
)

// Mode selects how a scan picks its transition.
type Mode string

const (
	// ModeToggle infers the action from the current status.
	ModeToggle  Mode = "toggle"
	ModeTimeIn  Mode = "time-in"
	ModeTimeOut Mode = "time-out"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeToggle, ModeTimeIn, ModeTimeOut:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", attendee.ErrInvalid, s)
}

// Action is the transition requested for an attendee in status st.
func (m Mode) Action(st attendee.Status) attendee.Action {
	switch m {
	case ModeTimeIn:
		return attendee.ActionTimeIn
	case ModeTimeOut:
		return attendee.ActionTimeOut
	default:
		return attendee.Infer(st)
	}
}

// FailurePolicy decides what happens to an optimistic change when the remote
// call fails.
type FailurePolicy string

const (
	PolicyRollback FailurePolicy = "rollback"
	PolicyKeep     FailurePolicy = "keep"
)

func ParsePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyRollback, PolicyKeep:
		return p, nil
	case "":
		return PolicyRollback, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}
