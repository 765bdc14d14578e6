// internal/anomaly/anomaly.go
package anomaly

import (
	"sync"
	"sync/atomic"
	"time"
)

// Detector keeps a rolling per-minute event-count history and derives a
// process-wide throttle signal from it.
//
// Admitted events bump an atomic live counter (Observe); the expensive
// part — minute rotation and the throttle judgement — runs once per flush
// cycle (Check), not per event. Producers only ever read the cached
// throttle flag, so the gate's hot path stays lock-free.
type Detector struct {
	depth      int     // completed minutes kept in history
	multiplier float64 // throttle when live count > avg * multiplier

	live      atomic.Int64 // events admitted in the current minute
	throttled atomic.Bool  // last judgement, read by the gate

	mu          sync.Mutex
	minuteStart time.Time
	history     []sample // oldest first, len <= depth
}

type sample struct {
	minute time.Time
	count  int64
}

// Result is the outcome of one periodic check.
type Result struct {
	Throttled bool // current judgement
	Rotated   bool // a minute boundary was crossed during this check
}

// New returns a detector keeping depth completed minutes of history and
// throttling when the live minute exceeds the history mean by more than
// the multiplier.
func New(depth int, multiplier float64, now time.Time) *Detector {
	return &Detector{
		depth:       depth,
		multiplier:  multiplier,
		minuteStart: now.Truncate(time.Minute),
	}
}

// Observe records one admitted event in the current minute.
func (d *Detector) Observe() {
	d.live.Add(1)
}

// Throttled reports the judgement of the most recent Check.
func (d *Detector) Throttled() bool {
	return d.throttled.Load()
}

// Check rotates the minute window if a boundary has passed and recomputes
// the throttle state from scratch. Called once per flush cycle.
//
// With fewer than 2 completed minutes no judgement is possible and the
// detector stays in Normal. The comparison is strict: with history mean
// avg, a live count of exactly avg*multiplier does not throttle. There is
// no hysteresis — a rotation resets the live counter to zero, so a single
// quiet minute clears the throttle on the next cycle.
func (d *Detector) Check(now time.Time) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	var res Result

	minute := now.Truncate(time.Minute)
	if minute.After(d.minuteStart) {
		d.history = append(d.history, sample{
			minute: d.minuteStart,
			count:  d.live.Swap(0),
		})
		if len(d.history) > d.depth {
			d.history = d.history[len(d.history)-d.depth:]
		}
		d.minuteStart = minute
		res.Rotated = true
	}

	if len(d.history) >= 2 {
		var sum int64
		for _, s := range d.history {
			sum += s.count
		}
		avg := float64(sum) / float64(len(d.history))
		res.Throttled = float64(d.live.Load()) > avg*d.multiplier
	}

	d.throttled.Store(res.Throttled)
	return res
}
