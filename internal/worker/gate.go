// internal/worker/gate.go
package worker

import (
	"sync/atomic"
	"time"

	"sitetrack/internal/anomaly"
	"sitetrack/internal/buffer"
	"sitetrack/internal/limiter"
	"sitetrack/internal/metrics"
)

// Gate is the admission front door for client events. Checks run in
// order and short-circuit on the first failure:
//
//  1. event queue at its ceiling
//  2. anomaly throttle engaged
//  3. per-source sliding-window limit
//  4. global per-minute cap
//
// Visits never pass through the gate: they are server-observed, bounded
// by request volume, and only subject to the visit queue's capacity.
// Events are client-declared and forgeable in bulk, hence all four
// checks. Every rejection is silent to the caller and counted here.
type Gate struct {
	events   *buffer.EventQueue
	limiter  *limiter.Limiter
	detector *anomaly.Detector
	metrics  *metrics.Metrics

	globalLimit int64
	globalCount atomic.Int64 // admitted events in the current minute, all sources
}

// NewGate wires the gate to its owned collaborators.
func NewGate(events *buffer.EventQueue, l *limiter.Limiter, d *anomaly.Detector, m *metrics.Metrics, globalLimit int) *Gate {
	return &Gate{
		events:      events,
		limiter:     l,
		detector:    d,
		metrics:     m,
		globalLimit: int64(globalLimit),
	}
}

// TryAdmit decides a single event from sourceKey. A global-cap rejection
// does not undo the per-source admission already recorded; the source
// spent a slot on an event the process chose not to keep.
func (g *Gate) TryAdmit(sourceKey string, now time.Time) bool {
	if g.events.Full() {
		atomic.AddInt64(&g.metrics.EventsRejectedQueueFullTotal, 1)
		return false
	}

	if g.detector.Throttled() {
		atomic.AddInt64(&g.metrics.EventsRejectedThrottledTotal, 1)
		return false
	}

	if !g.limiter.Admit(sourceKey, now) {
		atomic.AddInt64(&g.metrics.EventsRejectedRateLimitedTotal, 1)
		return false
	}

	if g.globalCount.Add(1) > g.globalLimit {
		atomic.AddInt64(&g.metrics.EventsRejectedGlobalCapTotal, 1)
		return false
	}

	g.detector.Observe()
	atomic.AddInt64(&g.metrics.EventsAdmittedTotal, 1)
	return true
}

// resetWindow zeroes the global counter. Called by the flush loop when
// the detector rotates its minute, so both share one minute boundary.
func (g *Gate) resetWindow() {
	g.globalCount.Store(0)
}
