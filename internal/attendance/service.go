package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"eventcheckin/internal/attendee"
	"eventcheckin/internal/metrics"
)

// Clock supplies the service's notion of now.
type Clock interface{ Now() time.Time }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TicketSender delivers a newly registered attendee's ticket.
type TicketSender interface {
	SendTicket(ctx context.Context, a attendee.Attendee) error
}

// Option configures a Service.
type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

func WithTickets(t TicketSender) Option { return func(s *Service) { s.tickets = t } }

// WithBarcodes replaces the barcode generator.
func WithBarcodes(gen func() (string, error)) Option { return func(s *Service) { s.newBarcode = gen } }

// Service is the authoritative attendance store. Every transition is
// re-validated against the stored record and written conditionally.
type Service struct {
	repo       *Repository
	clock      Clock
	tickets    TicketSender
	newBarcode func() (string, error)
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, opts ...Option) *Service {
	s := &Service{repo: repo, clock: systemClock{}, newBarcode: attendee.NewBarcode}
	for _, o := range opts {
		o(s)
	}
	return s
}

const (
	barcodeAttempts    = 5
	transitionAttempts = 3
)

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

func (s *Service) List(ctx context.Context, query string) ([]attendee.Attendee, error) {
	return s.repo.List(ctx, query)
}

func (s *Service) Get(ctx context.Context, id string) (attendee.Attendee, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByBarcode(ctx context.Context, code string) (attendee.Attendee, error) {
	return s.repo.GetByBarcode(ctx, code)
}

// Register creates an attendee in NEVER_ENTERED and hands it to the ticket
// sender. Ticket delivery failures are logged, not returned.
func (s *Service) Register(ctx context.Context, in attendee.Registration) (attendee.Attendee, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return attendee.Attendee{}, err
	}
	taken, err := s.repo.EmailTaken(ctx, in.Email, "")
	if err != nil {
		return attendee.Attendee{}, err
	}
	if taken {
		return attendee.Attendee{}, ErrConflict("email already registered")
	}

	if in.Barcode != "" {
		if taken, err := s.repo.BarcodeTaken(ctx, in.Barcode); err != nil {
			return attendee.Attendee{}, err
		} else if taken {
			return attendee.Attendee{}, ErrConflict("barcode already assigned")
		}
	} else if in.Barcode, err = s.freshBarcode(ctx); err != nil {
		return attendee.Attendee{}, err
	}

	a := attendee.New(uuid.NewString(), in, s.now())
	if err := s.repo.Insert(ctx, a); err != nil {
		return attendee.Attendee{}, conflictFor(err)
	}

	if s.tickets != nil {
		if err := s.tickets.SendTicket(ctx, a); err != nil {
			metrics.TicketFailures.Inc()
			log.Printf("ticket for %s not sent: %v", a.ID, err)
		}
	}
	return a, nil
}

func (s *Service) freshBarcode(ctx context.Context) (string, error) {
	for i := 0; i < barcodeAttempts; i++ {
		code, err := s.newBarcode()
		if err != nil {
			return "", err
		}
		taken, err := s.repo.BarcodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique barcode")
}

// Update applies an administrative edit. Attendance fields are not editable.
func (s *Service) Update(ctx context.Context, id string, p attendee.Patch) (attendee.Attendee, error) {
	if err := p.Validate(); err != nil {
		return attendee.Attendee{}, err
	}
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return attendee.Attendee{}, err
	}
	next := p.ApplyTo(cur)
	if next.Email != cur.Email {
		taken, err := s.repo.EmailTaken(ctx, next.Email, id)
		if err != nil {
			return attendee.Attendee{}, err
		}
		if taken {
			return attendee.Attendee{}, ErrConflict("email already registered")
		}
	}
	if err := s.repo.UpdateDetails(ctx, next); err != nil {
		return attendee.Attendee{}, conflictFor(err)
	}
	return next, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// BulkResult reports a multi-record delete. Failed maps id to reason.
type BulkResult struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// DeleteMany deletes each id independently.
func (s *Service) DeleteMany(ctx context.Context, ids []string) (BulkResult, error) {
	if len(ids) == 0 {
		return BulkResult{}, ErrInvalid("ids are required")
	}
	res := BulkResult{Deleted: []string{}}
	for _, id := range ids {
		if err := s.repo.Delete(ctx, id); err != nil {
			if res.Failed == nil {
				res.Failed = map[string]string{}
			}
			res.Failed[id] = err.Error()
			continue
		}
		res.Deleted = append(res.Deleted, id)
	}
	return res, nil
}

func (s *Service) TimeIn(ctx context.Context, id string) (attendee.Attendee, error) {
	return s.transition(ctx, id, func(attendee.Status) attendee.Action { return attendee.ActionTimeIn })
}

func (s *Service) TimeOut(ctx context.Context, id string) (attendee.Attendee, error) {
	return s.transition(ctx, id, func(attendee.Status) attendee.Action { return attendee.ActionTimeOut })
}

// Toggle infers the action from the stored status.
func (s *Service) Toggle(ctx context.Context, id string) (attendee.Attendee, error) {
	return s.transition(ctx, id, attendee.Infer)
}

// transition applies the chosen action to the stored record and writes it
// only if the status has not moved underneath. A lost race is re-evaluated
// against the fresh record, which normally turns it into a rule error.
func (s *Service) transition(ctx context.Context, id string, pick func(attendee.Status) attendee.Action) (attendee.Attendee, error) {
	for i := 0; i < transitionAttempts; i++ {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return attendee.Attendee{}, err
		}
		next, err := attendee.Apply(cur, pick(cur.CurrentStatus), s.now())
		if err != nil {
			return cur, err
		}
		ok, err := s.repo.UpdateState(ctx, next, cur.CurrentStatus)
		if err != nil {
			return attendee.Attendee{}, err
		}
		if ok {
			return next, nil
		}
	}
	return attendee.Attendee{}, fmt.Errorf("attendee %s: %w", id, ErrConflict("concurrent update, retry"))
}

// Stats summarizes every attendee.
func (s *Service) Stats(ctx context.Context) (attendee.Summary, error) {
	list, err := s.repo.List(ctx, "")
	if err != nil {
		return attendee.Summary{}, err
	}
	return attendee.Summarize(list, s.now()), nil
}
