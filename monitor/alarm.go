package monitor

import (
	"sync"
	"time"
)

// Verdict is the outcome of weighing one sample against the threshold.
type Verdict struct {
	// Alert means an audible alert should fire for this sample. Rate
	// limited by the cooldown.
	Alert bool
	// Active is the visual alarm state after this sample.
	Active bool
}

// Alarm decides when loudness crosses the line. It runs two timescales:
// audible alerts are throttled by a cooldown so the alarm tone cannot
// machine-gun, while the visual alarm state stays asserted until decay
// time passes without another loud sample.
//
// The notify callback fires on every visual state edge, including the
// decay edge, which arrives from a timer goroutine. It is always invoked
// without internal locks held.
type Alarm struct {
	threshold float64
	cooldown  time.Duration
	decay     time.Duration
	notify    func(active bool)

	mu        sync.Mutex
	lastAlert time.Time
	active    bool
	timer     *time.Timer
	gen       uint64
}

func NewAlarm(threshold float64, cooldown, decay time.Duration, notify func(bool)) *Alarm {
	if notify == nil {
		notify = func(bool) {}
	}
	return &Alarm{
		threshold: threshold,
		cooldown:  cooldown,
		decay:     decay,
		notify:    notify,
	}
}

// Evaluate weighs one sample. now is passed in rather than read from the
// clock so the cooldown window is testable.
//
// A loud sample asserts the visual alarm and restarts the decay timer;
// the alarm drops only after decay time passes with no further loud
// samples. The first loud sample of a session always alerts, later ones
// only once the cooldown has fully elapsed.
func (a *Alarm) Evaluate(s Sample, now time.Time) Verdict {
	var v Verdict
	asserted := false

	a.mu.Lock()
	if s.RMS > a.threshold {
		if !a.active {
			a.active = true
			asserted = true
		}
		a.rearmLocked()
		if a.lastAlert.IsZero() || now.Sub(a.lastAlert) > a.cooldown {
			a.lastAlert = now
			v.Alert = true
		}
	}
	v.Active = a.active
	a.mu.Unlock()

	if asserted {
		a.notify(true)
	}
	return v
}

// rearmLocked restarts the decay timer. Caller holds a.mu.
func (a *Alarm) rearmLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(a.decay, func() { a.expire(gen) })
}

// expire clears the visual alarm when the decay timer fires. The
// generation check drops stale timers that lost the race with a rearm or
// reset, so a cancelled timer can never clear a fresh alarm.
func (a *Alarm) expire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || !a.active {
		a.mu.Unlock()
		return
	}
	a.active = false
	a.timer = nil
	a.mu.Unlock()

	a.notify(false)
}

func (a *Alarm) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Reset cancels any pending decay and returns the alarm to its initial
// state without notifying. Called on session boundaries.
func (a *Alarm) Reset() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.active = false
	a.lastAlert = time.Time{}
	a.mu.Unlock()
}
