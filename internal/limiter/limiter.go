// internal/limiter/limiter.go
package limiter

import (
	"sync"
	"time"
)

// Limiter enforces a per-source sliding-window admission ceiling.
//
// Each source key owns a window of recent admission timestamps. Windows
// live in a sync.Map so unrelated sources never serialize against each
// other; calls for the same key serialize on the window's own mutex.
//
// An empty source key bypasses per-source limiting entirely. Keyless
// traffic is still bounded by the gate's global per-minute cap, so one
// shared sentinel window would only let anonymous callers starve each
// other without adding protection.
type Limiter struct {
	limit  int           // admissions allowed per window, per source
	window time.Duration // sliding window width
	stale  time.Duration // idle age after which an empty window is dropped

	sources sync.Map // string -> *sourceWindow
}

type sourceWindow struct {
	mu       sync.Mutex
	times    []time.Time // admission timestamps, oldest first
	lastSeen time.Time   // last Admit call, for the cleanup sweep
}

// New returns a limiter admitting up to limit calls per window for each
// source. Entries idle for stale (and empty) are removed by Sweep.
func New(limit int, window, stale time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		stale:  stale,
	}
}

// Admit reports whether an event from key may be admitted at now.
// Timestamps older than the window are pruned first; at or above the
// ceiling the call is rejected without recording. Admission order within
// one key matches arrival order.
func (l *Limiter) Admit(key string, now time.Time) bool {
	if key == "" {
		return true
	}

	v, _ := l.sources.LoadOrStore(key, &sourceWindow{})
	w := v.(*sourceWindow)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastSeen = now
	w.prune(now.Add(-l.window))

	if len(w.times) >= l.limit {
		return false
	}

	w.times = append(w.times, now)
	return true
}

// prune drops timestamps at or before cutoff. Caller holds w.mu.
func (w *sourceWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// Sweep removes source entries whose window is empty and whose last
// activity is older than the stale age. Driven by the flush cycle, not
// by Admit, so a spoofed-address flood cannot grow the map unbounded.
func (l *Limiter) Sweep(now time.Time) {
	cutoff := now.Add(-l.window)

	l.sources.Range(func(key, v any) bool {
		w := v.(*sourceWindow)

		w.mu.Lock()
		w.prune(cutoff)
		dead := len(w.times) == 0 && now.Sub(w.lastSeen) >= l.stale
		w.mu.Unlock()

		if dead {
			l.sources.Delete(key)
		}
		return true
	})
}

// Sources returns the number of tracked source windows.
func (l *Limiter) Sources() int {
	n := 0
	l.sources.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
