package attendee

import (
	"fmt"
	"strings"
	"time"

	"eventcheckin/internal/timefmt"
)

// Action is a requested lifecycle transition.
type Action string

const (
	ActionTimeIn  Action = "time-in"
	ActionTimeOut Action = "time-out"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionTimeIn, ActionTimeOut:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalid, s)
}

// Violation names the rule a rejected transition broke. The values double as
// wire codes in conflict responses.
type Violation string

const (
	AlreadyInside Violation = "ALREADY_INSIDE"
	CycleComplete Violation = "ALREADY_COMPLETED"
	NotEntered    Violation = "NOT_ENTERED"
)

// RuleError is a business-rule rejection. Nothing was mutated; Attendee is
// the record the rule was checked against.
type RuleError struct {
	Violation Violation
	Attendee  Attendee
}

func (e *RuleError) Error() string { return e.Message() }

// Message is the operator-facing text naming the conflicting state.
func (e *RuleError) Message() string {
	name := e.Attendee.Name
	if name == "" {
		name = "Attendee"
	}
	switch e.Violation {
	case AlreadyInside:
		return name + " is already inside"
	case CycleComplete:
		return name + " has already completed their entry/exit cycle"
	case NotEntered:
		return name + " has not entered yet"
	}
	return name + ": " + string(e.Violation)
}

// Infer picks the toggle-mode action for a status. OUT maps to time-in so
// that Check reports the cycle as complete.
func Infer(s Status) Action {
	if s == In {
		return ActionTimeOut
	}
	return ActionTimeIn
}

// Check validates action against the attendee's current status.
//
//	NEVER_ENTERED + time-in  -> IN
//	IN            + time-out -> OUT
//	OUT           + any      -> rejected, OUT is terminal
func Check(a Attendee, action Action) error {
	if action != ActionTimeIn && action != ActionTimeOut {
		return fmt.Errorf("%w: unknown action %q", ErrInvalid, action)
	}
	switch a.CurrentStatus {
	case NeverEntered:
		if action == ActionTimeOut {
			return &RuleError{Violation: NotEntered, Attendee: a}
		}
		return nil
	case In:
		if action == ActionTimeIn {
			return &RuleError{Violation: AlreadyInside, Attendee: a}
		}
		return nil
	case Out:
		return &RuleError{Violation: CycleComplete, Attendee: a}
	}
	return fmt.Errorf("%w: unknown status %q", ErrInvalid, a.CurrentStatus)
}

// Apply validates and performs a transition, returning the new record. The
// input is not modified.
func Apply(a Attendee, action Action, now time.Time) (Attendee, error) {
	if err := Check(a, action); err != nil {
		return a, err
	}
	next := a
	at := now
	switch action {
	case ActionTimeIn:
		next.CurrentStatus = In
		next.TimeIn = &at
		next.TimeOut = nil
		next.CheckedIn = true
		next.CheckedInAt = &at
	case ActionTimeOut:
		next.CurrentStatus = Out
		next.TimeOut = &at
		next.CheckedIn = true
		if a.TimeIn != nil {
			next.TotalTimeSpent = a.TotalTimeSpent + timefmt.SecondsOf(now.Sub(*a.TimeIn))
		}
	}
	return next, nil
}
