package checkin

import (
	"context"
	"errors"

	"eventcheckin/internal/attendee"
)

// Directory is the part of the attendance service that manages the guest
// list itself.
type Directory interface {
	Create(ctx context.Context, r attendee.Registration) (attendee.Attendee, error)
	UpdateFields(ctx context.Context, id string, p attendee.Patch) (attendee.Attendee, error)
	Delete(ctx context.Context, id string) error
}

// Roster applies guest list changes made at a station to the service and
// then to the station cache. The cache only changes once the service has
// accepted the change.
type Roster struct {
	dir      Directory
	resolver *Resolver
}

func NewRoster(dir Directory, resolver *Resolver) *Roster {
	return &Roster{dir: dir, resolver: resolver}
}

// Register creates an attendee and prepends it to the cache.
func (r *Roster) Register(ctx context.Context, reg attendee.Registration) (attendee.Attendee, error) {
	reg = reg.Normalize()
	if err := reg.Validate(); err != nil {
		return attendee.Attendee{}, err
	}
	a, err := call(ctx, r.resolver, "create", func(ctx context.Context) (attendee.Attendee, error) {
		return r.dir.Create(ctx, reg)
	})
	if err != nil {
		return attendee.Attendee{}, err
	}
	r.resolver.store.Insert(a)
	return a, nil
}

// Edit updates detail fields. The attendance state is never part of an edit.
func (r *Roster) Edit(ctx context.Context, id string, p attendee.Patch) (attendee.Attendee, error) {
	if err := p.Validate(); err != nil {
		return attendee.Attendee{}, err
	}
	unlock, err := r.resolver.cfg.Locker.Lock(ctx, id)
	if err != nil {
		return attendee.Attendee{}, &RemoteError{Op: "lock", Err: err}
	}
	defer unlock()

	a, err := call(ctx, r.resolver, "update", func(ctx context.Context) (attendee.Attendee, error) {
		return r.dir.UpdateFields(ctx, id, p)
	})
	if errors.Is(err, attendee.ErrNotFound) {
		r.resolver.store.RemoveByID(id)
	}
	if err != nil {
		return attendee.Attendee{}, err
	}
	if !r.resolver.store.UpsertByID(a) {
		r.resolver.store.Insert(a)
	}
	return a, nil
}

// Remove deletes an attendee from the service and the cache. A record the
// service no longer knows is evicted as well.
func (r *Roster) Remove(ctx context.Context, id string) error {
	unlock, err := r.resolver.cfg.Locker.Lock(ctx, id)
	if err != nil {
		return &RemoteError{Op: "lock", Err: err}
	}
	defer unlock()

	_, err = call(ctx, r.resolver, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.dir.Delete(ctx, id)
	})
	if err == nil || errors.Is(err, attendee.ErrNotFound) {
		r.resolver.store.RemoveByID(id)
	}
	return err
}
