package checkin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrScannerStopped is returned for scans that arrive while no scanner
// session is active.
var ErrScannerStopped = errors.New("scanner is not active")

// Device is a barcode capture source. Decoding happens outside this package.
type Device interface {
	Start(ctx context.Context) error
	Stop() error
}

// Session tracks the scanner lifecycle. Start always stops a running
// capture first so a restart never leaks the previous one.
type Session struct {
	mu     sync.Mutex
	dev    Device
	active bool
	source string
	// changed is closed and replaced on every start and stop.
	changed chan struct{}
}

// NewSession wraps dev, which may be nil when scans arrive from elsewhere
// (a queue or the HTTP API).
func NewSession(dev Device) *Session {
	return &Session{dev: dev}
}

// Start activates scanning from source.
func (s *Session) Start(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.stopLocked()
	}
	if s.dev != nil {
		if err := s.dev.Start(ctx); err != nil {
			return fmt.Errorf("start scanner %q: %w; manual check-in is still available", source, err)
		}
	}
	s.active = true
	s.source = source
	s.notifyLocked()
	return nil
}

// Stop releases the device. Stopping an inactive session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.stopLocked()
	}
}

func (s *Session) stopLocked() {
	if s.dev != nil {
		if err := s.dev.Stop(); err != nil {
			log.Printf("scanner %q stop failed: %v", s.source, err)
		}
	}
	s.active = false
	s.source = ""
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	if s.changed != nil {
		close(s.changed)
	}
	s.changed = make(chan struct{})
}

func (s *Session) watch() (bool, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changed == nil {
		s.changed = make(chan struct{})
	}
	return s.active, s.changed
}

// WaitActive blocks until the session is active or ctx ends.
func (s *Session) WaitActive(ctx context.Context) error {
	return s.waitFor(ctx, true)
}

// WaitInactive blocks until the session is stopped or ctx ends.
func (s *Session) WaitInactive(ctx context.Context) error {
	return s.waitFor(ctx, false)
}

func (s *Session) waitFor(ctx context.Context, active bool) error {
	for {
		now, changed := s.watch()
		if now == active {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Source names the active scanner, or "" when stopped.
func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}
