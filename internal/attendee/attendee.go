package attendee

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"eventcheckin/internal/timefmt"
)

var (
	// ErrNotFound is returned when no attendee matches an id or barcode.
	ErrNotFound = errors.New("attendee not found")
	// ErrInvalid wraps input validation failures.
	ErrInvalid = errors.New("invalid attendee")
)

// Status is the attendance lifecycle state.
type Status string

const (
	NeverEntered Status = "NEVER_ENTERED"
	In           Status = "IN"
	Out          Status = "OUT"
)

// ParseStatus accepts exactly the three lifecycle states.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case NeverEntered, In, Out:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalid, s)
}

// MarshalText renders the zero Status as NEVER_ENTERED.
func (s Status) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(NeverEntered), nil
	}
	if _, err := ParseStatus(string(s)); err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// UnmarshalText treats a missing status as NEVER_ENTERED; records created
// before status tracking carry none.
func (s *Status) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = NeverEntered
		return nil
	}
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Label is the operator-facing rendering of a status.
type Label struct {
	Text  string `json:"text"`
	Class string `json:"class"`
}

func (s Status) Label() Label {
	switch s {
	case In:
		return Label{Text: "Inside", Class: "status-inside"}
	case Out:
		return Label{Text: "Completed", Class: "status-completed"}
	default:
		return Label{Text: "Not Entered", Class: "status-not-entered"}
	}
}

// Attendee is a registered participant.
type Attendee struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Barcode        string          `json:"barcode"`
	TableNumber    *string         `json:"table_number,omitempty"`
	SeatNumber     *string         `json:"seat_number,omitempty"`
	CheckedIn      bool            `json:"checked_in"`
	CheckedInAt    *time.Time      `json:"checked_in_at,omitempty"`
	CurrentStatus  Status          `json:"current_status"`
	TimeIn         *time.Time      `json:"time_in,omitempty"`
	TimeOut        *time.Time      `json:"time_out,omitempty"`
	TotalTimeSpent timefmt.Seconds `json:"total_time_spent"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SessionSeconds is the length of the current session for an attendee who is
// inside, or zero otherwise.
func (a Attendee) SessionSeconds(now time.Time) int64 {
	if a.CurrentStatus != In || a.TimeIn == nil {
		return 0
	}
	return timefmt.ElapsedSeconds(*a.TimeIn, now)
}

// Registration is the input for creating an attendee.
type Registration struct {
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Barcode     string  `json:"barcode,omitempty"`
	TableNumber *string `json:"table_number,omitempty"`
	SeatNumber  *string `json:"seat_number,omitempty"`
}

// Normalize trims whitespace and lower-cases the email.
func (r Registration) Normalize() Registration {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Barcode = strings.TrimSpace(r.Barcode)
	r.TableNumber = trimOptional(r.TableNumber)
	r.SeatNumber = trimOptional(r.SeatNumber)
	return r
}

func (r Registration) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	return validateEmail(r.Email)
}

// New builds the initial record for a registration.
func New(id string, r Registration, now time.Time) Attendee {
	return Attendee{
		ID:            id,
		Name:          r.Name,
		Email:         r.Email,
		Barcode:       r.Barcode,
		TableNumber:   r.TableNumber,
		SeatNumber:    r.SeatNumber,
		CurrentStatus: NeverEntered,
		CreatedAt:     now,
	}
}

// Patch is an administrative edit. Nil fields are left unchanged.
type Patch struct {
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`
	TableNumber *string `json:"table_number,omitempty"`
	SeatNumber  *string `json:"seat_number,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.TableNumber == nil && p.SeatNumber == nil
}

func (p Patch) Validate() error {
	if p.Empty() {
		return fmt.Errorf("%w: no fields to update", ErrInvalid)
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalid)
	}
	if p.Email != nil {
		return validateEmail(strings.ToLower(strings.TrimSpace(*p.Email)))
	}
	return nil
}

// ApplyTo returns a copy of a with the patch applied.
func (p Patch) ApplyTo(a Attendee) Attendee {
	if p.Name != nil {
		a.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		a.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.TableNumber != nil {
		a.TableNumber = trimOptional(p.TableNumber)
	}
	if p.SeatNumber != nil {
		a.SeatNumber = trimOptional(p.SeatNumber)
	}
	return a
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalid)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email %q is not valid", ErrInvalid, email)
	}
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
