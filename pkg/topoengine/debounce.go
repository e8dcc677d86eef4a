package topoengine

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiescence window used for slider-driven controls.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer smooths a rapidly-changing integer control. Each Set restarts
// the quiescence timer; the callback fires only once the value has been
// stable for the full window. The very first observed value applies
// immediately so a fresh control surface does not start with a dead window.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	timer   *time.Timer
	value   int
	pending int
	primed  bool
	fn      func(int)
}

// NewDebouncer builds a debouncer with the given window. fn may be nil for
// poll-only use via Value; when set it is called from the timer goroutine.
func NewDebouncer(window time.Duration, fn func(int)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{window: window, fn: fn}
}

// Set observes a new raw value.
func (d *Debouncer) Set(v int) {
	d.mu.Lock()
	if !d.primed {
		d.primed = true
		d.value = v
		d.pending = v
		fn := d.fn
		d.mu.Unlock()
		if fn != nil {
			fn(v)
		}
		return
	}
	d.pending = v
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
	d.mu.Unlock()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.value = d.pending
	v := d.value
	fn := d.fn
	d.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

// Value returns the current debounced value.
func (d *Debouncer) Value() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Stop cancels any pending update. The debounced value stays at whatever
// last settled.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
