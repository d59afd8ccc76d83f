package cache

import (
	"sync"
	"time"
)

// DefaultSearchDelay is the quiet period before a typed query is applied.
const DefaultSearchDelay = 300 * time.Millisecond

// Debouncer delays a value until no newer value has arrived for the delay.
// A newer Set cancels the pending one.
type Debouncer struct {
	delay time.Duration
	apply func(string)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	value   string
}

func NewDebouncer(delay time.Duration, apply func(string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultSearchDelay
	}
	return &Debouncer{delay: delay, apply: apply}
}

// QueryDebouncer debounces SetQuery on s.
func (s *Store) QueryDebouncer(delay time.Duration) *Debouncer {
	return NewDebouncer(delay, s.SetQuery)
}

func (d *Debouncer) Set(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.value = v
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Pending reports whether a value is waiting to be applied.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Flush applies a waiting value immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	v := d.value
	d.pending = false
	d.mu.Unlock()
	d.apply(v)
}

// Stop discards a waiting value.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.pending = false
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.value
	d.pending = false
	d.mu.Unlock()
	d.apply(v)
}
