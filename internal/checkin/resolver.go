package checkin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eventcheckin/internal/attendee"
	"eventcheckin/internal/cache"
	"eventcheckin/internal/metrics"
)

var (
	// ErrUnknownBarcode is returned when no attendee carries the scanned code.
	ErrUnknownBarcode = errors.New("unknown barcode")
	// ErrDuplicateScan is returned when a code repeats within the cooldown.
	ErrDuplicateScan = errors.New("duplicate scan")
)

// Remote is the authoritative attendance service. Implementations return
// attendee.ErrNotFound for missing records and *attendee.RuleError, carrying
// the current record, when the service rejects a transition. Any other error
// is treated as a transport failure.
type Remote interface {
	FetchAll(ctx context.Context) ([]attendee.Attendee, error)
	FetchByBarcode(ctx context.Context, code string) (attendee.Attendee, error)
	FetchByID(ctx context.Context, id string) (attendee.Attendee, error)
	TimeIn(ctx context.Context, id string) (attendee.Attendee, error)
	TimeOut(ctx context.Context, id string) (attendee.Attendee, error)
	Toggle(ctx context.Context, id string) (attendee.Attendee, error)
}

// RemoteError is a failed call to the attendance service.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return "attendance service " + e.Op + ": " + e.Err.Error() }
func (e *RemoteError) Unwrap() error { return e.Err }

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
	OutcomeUnknown   Outcome = "unknown"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result is what the operator sees after a scan or manual check-in.
type Result struct {
	Outcome   Outcome            `json:"outcome"`
	Action    attendee.Action    `json:"action,omitempty"`
	Violation attendee.Violation `json:"violation,omitempty"`
	Attendee  *attendee.Attendee `json:"attendee,omitempty"`
	Message   string             `json:"message"`
}

// Config tunes a Resolver. Zero values select the defaults.
type Config struct {
	Mode     Mode
	Policy   FailurePolicy
	Timeout  time.Duration
	Cooldown time.Duration
	Locker   Locker
	Now      func() time.Time
}

const (
	DefaultTimeout  = 5 * time.Second
	DefaultCooldown = 2 * time.Second
)

// Resolver turns scans and manual selections into attendance transitions.
// Every transition is validated locally, published to the cache, sent to the
// remote service and then committed or reverted.
type Resolver struct {
	remote  Remote
	store   *cache.Store
	session *Session
	cfg     Config

	flight singleflight.Group

	mu     sync.Mutex
	recent map[string]time.Time
}

func NewResolver(remote Remote, store *cache.Store, session *Session, cfg Config) *Resolver {
	if cfg.Mode == "" {
		cfg.Mode = ModeToggle
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyRollback
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.Locker == nil {
		cfg.Locker = NewKeyedMutex()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if session == nil {
		session = NewSession(nil)
	}
	return &Resolver{remote: remote, store: store, session: session, cfg: cfg, recent: make(map[string]time.Time)}
}

func (r *Resolver) Session() *Session { return r.session }

// DefaultMode is used when a scan does not name one.
func (r *Resolver) DefaultMode() Mode { return r.cfg.Mode }

// Reconcile replaces the cache with the service's current list.
func (r *Resolver) Reconcile(ctx context.Context) error {
	list, err := call(ctx, r, "fetch_all", r.remote.FetchAll)
	if err != nil {
		return err
	}
	r.store.ReplaceAll(list)
	metrics.CacheSize.Set(float64(len(list)))
	return nil
}

// ResolveScan handles one decoded barcode. Identical scans in flight share a
// single resolution; a code repeated within the cooldown is reported as a
// duplicate without contacting the service.
func (r *Resolver) ResolveScan(ctx context.Context, code string, mode Mode) (Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Result{}, fmt.Errorf("%w: empty barcode", attendee.ErrInvalid)
	}
	if !r.session.Active() {
		return Result{}, ErrScannerStopped
	}
	if mode == "" {
		mode = r.cfg.Mode
	}

	v, err, _ := r.flight.Do("scan:"+string(mode)+":"+code, func() (any, error) {
		if r.cooling(code) {
			res := Result{Outcome: OutcomeDuplicate, Message: "Already scanned, please wait"}
			if a, ok := r.store.FindByBarcode(code); ok {
				res.Attendee = &a
			}
			return res, ErrDuplicateScan
		}
		res, err := r.resolveScan(ctx, code, mode)
		if res.Outcome == OutcomeApplied || res.Outcome == OutcomeRejected {
			r.markScanned(code)
		}
		return res, err
	})
	res, _ := v.(Result)
	r.report(code, res)
	return res, err
}

func (r *Resolver) resolveScan(ctx context.Context, code string, mode Mode) (Result, error) {
	a, err := call(ctx, r, "fetch_by_barcode", func(ctx context.Context) (attendee.Attendee, error) {
		return r.remote.FetchByBarcode(ctx, code)
	})
	if errors.Is(err, attendee.ErrNotFound) {
		return Result{Outcome: OutcomeUnknown, Message: "Unknown barcode " + code}, fmt.Errorf("%w: %s", ErrUnknownBarcode, code)
	}
	if err != nil {
		return Result{Outcome: OutcomeFailed, Message: failedMessage}, err
	}
	return r.transition(ctx, a, mode)
}

// ManualCheckIn applies mode to an attendee already in the cache. It does
// not require an active scanner.
func (r *Resolver) ManualCheckIn(ctx context.Context, id string, mode Mode) (Result, error) {
	a, ok := r.store.Get(id)
	if !ok {
		return Result{}, attendee.ErrNotFound
	}
	if mode == "" {
		mode = r.cfg.Mode
	}
	v, err, _ := r.flight.Do("manual:"+string(mode)+":"+id, func() (any, error) {
		return r.transition(ctx, a, mode)
	})
	res, _ := v.(Result)
	r.report(id, res)
	return res, err
}

const failedMessage = "Check-in failed, please retry"

func (r *Resolver) transition(ctx context.Context, a attendee.Attendee, mode Mode) (Result, error) {
	unlock, err := r.cfg.Locker.Lock(ctx, a.ID)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Message: failedMessage}, &RemoteError{Op: "lock", Err: err}
	}
	defer unlock()

	// A transition may have committed while we waited for the lock.
	if cached, ok := r.store.Get(a.ID); ok && rank(cached.CurrentStatus) > rank(a.CurrentStatus) {
		a = cached
	}

	action := mode.Action(a.CurrentStatus)
	next, err := attendee.Apply(a, action, r.cfg.Now().UTC())
	if err != nil {
		var rule *attendee.RuleError
		if !errors.As(err, &rule) {
			return Result{}, err
		}
		r.adopt(a)
		return rejected(action, rule), err
	}

	pending := r.store.TentativeApply(a, next)
	canonical, err := call(ctx, r, string(action), func(ctx context.Context) (attendee.Attendee, error) {
		return r.send(ctx, mode, action, a.ID)
	})
	if err == nil {
		pending.Commit(canonical)
		r.store.SetLastScanned(canonical)
		done := performed(canonical, action)
		return Result{Outcome: OutcomeApplied, Action: done, Attendee: &canonical, Message: appliedMessage(done, canonical)}, nil
	}

	var rule *attendee.RuleError
	if errors.As(err, &rule) {
		pending.Rollback()
		if rule.Attendee.ID == "" {
			rule.Attendee = a
		}
		r.adopt(rule.Attendee)
		return rejected(action, rule), err
	}

	shown := pending.Before()
	switch r.cfg.Policy {
	case PolicyKeep:
		pending.Keep()
		shown = next
	default:
		pending.Rollback()
		metrics.Rollbacks.Inc()
	}
	r.store.SetLastScanned(shown)
	return Result{Outcome: OutcomeFailed, Action: action, Attendee: &shown, Message: failedMessage}, err
}

// send picks the remote operation. Toggle mode lets the service infer the
// action from its own record.
func (r *Resolver) send(ctx context.Context, mode Mode, action attendee.Action, id string) (attendee.Attendee, error) {
	if mode == ModeToggle {
		return r.remote.Toggle(ctx, id)
	}
	if action == attendee.ActionTimeOut {
		return r.remote.TimeOut(ctx, id)
	}
	return r.remote.TimeIn(ctx, id)
}

// adopt stores a record the service vouched for and shows it as last scanned.
func (r *Resolver) adopt(a attendee.Attendee) {
	if !r.store.UpsertByID(a) {
		r.store.Insert(a)
	}
	r.store.SetLastScanned(a)
}

func rejected(action attendee.Action, rule *attendee.RuleError) Result {
	a := rule.Attendee
	return Result{Outcome: OutcomeRejected, Action: action, Violation: rule.Violation, Attendee: &a, Message: rule.Message()}
}

// performed names the action the service committed. In toggle mode the
// service infers it from its own record, which may be ahead of the cache.
func performed(committed attendee.Attendee, requested attendee.Action) attendee.Action {
	switch committed.CurrentStatus {
	case attendee.Out:
		return attendee.ActionTimeOut
	case attendee.In:
		return attendee.ActionTimeIn
	}
	return requested
}

func appliedMessage(action attendee.Action, a attendee.Attendee) string {
	if action == attendee.ActionTimeOut {
		return a.Name + " timed out, total " + a.TotalTimeSpent.Human()
	}
	return a.Name + " timed in"
}

// rank orders statuses along the lifecycle, which only moves forward.
func rank(s attendee.Status) int {
	switch s {
	case attendee.In:
		return 1
	case attendee.Out:
		return 2
	default:
		return 0
	}
}

func (r *Resolver) cooling(code string) bool {
	if r.cfg.Cooldown == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.recent[code]
	return ok && r.cfg.Now().Sub(last) < r.cfg.Cooldown
}

func (r *Resolver) markScanned(code string) {
	if r.cfg.Cooldown == 0 {
		return
	}
	now := r.cfg.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, at := range r.recent {
		if now.Sub(at) >= r.cfg.Cooldown {
			delete(r.recent, k)
		}
	}
	r.recent[code] = now
}

func (r *Resolver) report(key string, res Result) {
	if res.Outcome == "" {
		return
	}
	metrics.Scans.WithLabelValues(string(res.Outcome)).Inc()
	name := "-"
	if res.Attendee != nil {
		name = res.Attendee.Name
	}
	log.Printf("checkin %s: %s %s (%s)", key, res.Outcome, name, res.Message)
}

// call runs one remote operation under the configured timeout. Not-found and
// rule errors pass through; everything else becomes a *RemoteError.
func call[T any](ctx context.Context, r *Resolver, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	start := time.Now()
	v, err := fn(ctx)
	metrics.ObserveRemote(op, start, err)
	if err == nil {
		return v, nil
	}
	var rule *attendee.RuleError
	if errors.Is(err, attendee.ErrNotFound) || errors.As(err, &rule) {
		return v, err
	}
	var zero T
	return zero, &RemoteError{Op: op, Err: err}
}
