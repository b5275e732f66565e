package realtime

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of Trigger calls into one call of fn, run
// after wait has passed without a new trigger, or at the latest maxWait
// after the first trigger of the burst.
type Debouncer struct {
	wait    time.Duration
	maxWait time.Duration
	fn      func()

	mu      sync.Mutex
	timer   *time.Timer
	first   time.Time
	pending bool
	seq     uint64
	stopped bool
}

// NewDebouncer creates a debouncer. maxWait <= 0 disables the ceiling.
func NewDebouncer(wait, maxWait time.Duration, fn func()) *Debouncer {
	return &Debouncer{wait: wait, maxWait: maxWait, fn: fn}
}

// Trigger schedules fn, pushing back any pending run.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	now := time.Now()
	if !d.pending {
		d.pending = true
		d.first = now
	}
	delay := d.wait
	if d.maxWait > 0 {
		if left := d.first.Add(d.maxWait).Sub(now); left < delay {
			delay = left
		}
	}
	if delay < 0 {
		delay = 0
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(delay, func() { d.fire(seq) })
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if d.stopped || !d.pending || seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Flush runs a pending call immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped || !d.pending {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
	d.seq++
	d.mu.Unlock()
	d.fn()
}

// Stop cancels any pending call; later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
