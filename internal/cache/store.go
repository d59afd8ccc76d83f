package cache

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"eventcheckin/internal/attendee"
)

// Snapshot is a consistent copy of the store's views.
type Snapshot struct {
	Attendees   []attendee.Attendee
	Filtered    []attendee.Attendee
	Query       string
	LastScanned *attendee.Attendee
}

// Store is a station-local cache of attendees, newest first, with a filtered
// view derived from the current query. It is not authoritative: callers
// reconcile it against the attendance service.
type Store struct {
	mu        sync.RWMutex
	items     []attendee.Attendee
	query     string
	filtered  []attendee.Attendee
	last      *attendee.Attendee
	listeners map[int]func(Snapshot)
	nextID    int
}

func New() *Store {
	return &Store{listeners: make(map[int]func(Snapshot))}
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned func removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// ReplaceAll resets the cache and recomputes the filtered view.
func (s *Store) ReplaceAll(list []attendee.Attendee) {
	s.mutate(func() {
		s.items = append([]attendee.Attendee(nil), list...)
		if s.last != nil {
			if a, ok := s.find(s.last.ID); ok {
				s.last = &a
			} else {
				s.last = nil
			}
		}
	})
}

// Insert prepends a record. A record whose id is already cached is replaced
// in place instead.
func (s *Store) Insert(a attendee.Attendee) {
	s.mutate(func() {
		if i := s.index(a.ID); i >= 0 {
			s.items[i] = a
			s.touchLast(a)
			return
		}
		s.items = append([]attendee.Attendee{a}, s.items...)
	})
}

// UpsertByID replaces the record with a's id in every view. It reports false,
// and changes nothing, when the id is not cached.
func (s *Store) UpsertByID(a attendee.Attendee) bool {
	found := false
	s.mutate(func() {
		i := s.index(a.ID)
		if i < 0 {
			return
		}
		found = true
		s.items[i] = a
		s.touchLast(a)
	})
	return found
}

// RemoveByID deletes a record from every view and clears the last scanned
// pointer when it referred to it.
func (s *Store) RemoveByID(id string) bool {
	found := false
	s.mutate(func() {
		i := s.index(id)
		if i < 0 {
			return
		}
		found = true
		s.items = append(s.items[:i:i], s.items[i+1:]...)
		if s.last != nil && s.last.ID == id {
			s.last = nil
		}
	})
	return found
}

// SetQuery stores the query and recomputes the filtered view.
func (s *Store) SetQuery(q string) {
	s.mutate(func() { s.query = q })
}

// SetLastScanned records the attendee shown to the operator after a scan.
func (s *Store) SetLastScanned(a attendee.Attendee) {
	s.mutate(func() { s.last = &a })
}

func (s *Store) Get(id string) (attendee.Attendee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(id)
}

func (s *Store) FindByBarcode(code string) (attendee.Attendee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.items {
		if a.Barcode == code {
			return a, true
		}
	}
	return attendee.Attendee{}, false
}

func (s *Store) All() []attendee.Attendee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]attendee.Attendee(nil), s.items...)
}

func (s *Store) Filtered() []attendee.Attendee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]attendee.Attendee(nil), s.filtered...)
}

func (s *Store) Query() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

func (s *Store) LastScanned() (attendee.Attendee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return attendee.Attendee{}, false
	}
	return *s.last, true
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.filtered = filter(s.items, s.query)
	snap := s.snapshot()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (s *Store) snapshot() Snapshot {
	snap := Snapshot{
		Attendees: append([]attendee.Attendee(nil), s.items...),
		Filtered:  append([]attendee.Attendee(nil), s.filtered...),
		Query:     s.query,
	}
	if s.last != nil {
		last := *s.last
		snap.LastScanned = &last
	}
	return snap
}

func (s *Store) touchLast(a attendee.Attendee) {
	if s.last != nil && s.last.ID == a.ID {
		s.last = &a
	}
}

func (s *Store) index(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) find(id string) (attendee.Attendee, bool) {
	if i := s.index(id); i >= 0 {
		return s.items[i], true
	}
	return attendee.Attendee{}, false
}

// filter matches q against name and email after Unicode case folding. An
// empty query keeps every record.
func filter(items []attendee.Attendee, q string) []attendee.Attendee {
	q = strings.TrimSpace(q)
	if q == "" {
		return append([]attendee.Attendee(nil), items...)
	}
	fold := cases.Fold()
	needle := fold.String(q)
	out := make([]attendee.Attendee, 0, len(items))
	for _, a := range items {
		if strings.Contains(fold.String(a.Name), needle) || strings.Contains(fold.String(a.Email), needle) {
			out = append(out, a)
		}
	}
	return out
}
