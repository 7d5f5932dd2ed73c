package board

import (
	"sync"
	"time"
)

// Alarm is a reprogrammable one-shot timer. The owner explicitly
// reschedules it after every firing; there is no fire-and-forget mode, so
// a late or missed firing is caught up by comparing now against the
// stored due time on the next wake.
type Alarm struct {
	fn func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewAlarm creates an alarm that calls fn when it fires.
func NewAlarm(fn func()) *Alarm {
	return &Alarm{fn: fn}
}

// Set cancels any pending firing and arms the alarm for d from now.
func (a *Alarm) Set(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
	}
	if d < 0 {
		d = 0
	}
	a.timer = time.AfterFunc(d, a.fn)
}

// SetAt arms the alarm for the given wall-clock time.
func (a *Alarm) SetAt(t time.Time) {
	a.Set(time.Until(t))
}

// Stop cancels any pending firing.
func (a *Alarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
