package cache

import (
	"sync"

	"eventcheckin/internal/attendee"
)

// Pending is an optimistic change that has been published to the store but
// not yet confirmed. Exactly one of Commit or Rollback takes effect.
type Pending struct {
	s        *Store
	before   attendee.Attendee
	inserted bool

	once sync.Once
}

// TentativeApply publishes next in place of before. If the record was not
// cached it is inserted, and a rollback removes it again.
func (s *Store) TentativeApply(before, next attendee.Attendee) *Pending {
	p := &Pending{s: s, before: before}
	if !s.UpsertByID(next) {
		p.inserted = true
		s.Insert(next)
	}
	return p
}

// Before is the record as it was prior to the change.
func (p *Pending) Before() attendee.Attendee { return p.before }

// Commit replaces the optimistic record with the canonical one.
func (p *Pending) Commit(canonical attendee.Attendee) {
	p.once.Do(func() {
		if !p.s.UpsertByID(canonical) {
			p.s.Insert(canonical)
		}
	})
}

// Rollback restores the record to its prior value.
func (p *Pending) Rollback() {
	p.once.Do(func() {
		if p.inserted {
			p.s.RemoveByID(p.before.ID)
			return
		}
		p.s.UpsertByID(p.before)
	})
}

// Keep leaves the optimistic record in place without confirmation.
func (p *Pending) Keep() {
	p.once.Do(func() {})
}
