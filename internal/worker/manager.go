// internal/worker/manager.go
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"sitetrack/internal/anomaly"
	"sitetrack/internal/buffer"
	"sitetrack/internal/config"
	"sitetrack/internal/limiter"
	"sitetrack/internal/metrics"
	"sitetrack/internal/model"
	"sitetrack/internal/store"

	zlog "github.com/rs/zerolog/log"
)

// Manager owns the ingestion engine: the two bounded queues, the
// admission gate and its limiter/detector state, and the background
// flush loop that drains both queues into the backend every interval.
//
// Producer-side calls (EnqueueVisit, TryEnqueueEvent, Enrich) are safe
// from any number of request goroutines and complete in bounded,
// non-blocking time. Only the flush loop talks to the backend; a dead
// backend costs drained batches, never request latency.
//
// Persistence is at-most-once. A failed write drops the drained batch
// with a logged count — re-enqueueing would rebuild the unbounded memory
// growth the queues exist to prevent.
type Manager struct {
	cfg     config.Config
	metrics *metrics.Metrics
	backend store.Backend

	visits   *buffer.VisitQueue
	events   *buffer.EventQueue
	limiter  *limiter.Limiter
	detector *anomaly.Detector
	gate     *Gate

	throttled bool // previous cycle's judgement, flush goroutine only

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds the engine. All mutable state (source windows, minute
// history, queues, counters) is owned by the injected components, so the
// engine is fully testable without a running process.
func New(cfg config.Config, m *metrics.Metrics, backend store.Backend) *Manager {
	events := buffer.NewEventQueue(cfg.EventQueueCap)
	lim := limiter.New(cfg.SourceLimitPerMin, cfg.RateWindow, cfg.SourceStaleAfter)
	det := anomaly.New(cfg.AnomalyWindow, cfg.AnomalyMultiplier, time.Now())

	return &Manager{
		cfg:      cfg,
		metrics:  m,
		backend:  backend,
		visits:   buffer.NewVisitQueue(cfg.VisitQueueCap),
		events:   events,
		limiter:  lim,
		detector: det,
		gate:     NewGate(events, lim, det, m, cfg.GlobalLimitPerMin),
	}
}

// Start launches the flush loop.
func (m *Manager) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.flushLoop()
}

// Shutdown cancels the interval wait and blocks until the loop has run
// its final drain-and-flush. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		m.cancel()
	})
	m.wg.Wait()
}

// EnqueueVisit buffers one server-observed visit record. Fire and
// forget: visits bypass the gate and are only subject to queue capacity.
func (m *Manager) EnqueueVisit(v *model.VisitRecord) {
	if v == nil {
		return
	}
	if m.visits.Enqueue(v) {
		atomic.AddInt64(&m.metrics.VisitsEnqueuedTotal, 1)
		return
	}
	atomic.AddInt64(&m.metrics.VisitsDroppedQueueFullTotal, 1)
}

// TryEnqueueEvent admits and buffers one client event. False means the
// event was silently discarded; callers must not treat it as an error.
// The queue can fill between the gate's capacity check and the enqueue;
// that race resolves as one more counted capacity drop.
func (m *Manager) TryEnqueueEvent(e *model.TrackingEvent, sourceKey string) bool {
	if e == nil {
		return false
	}
	if !m.gate.TryAdmit(sourceKey, time.Now()) {
		return false
	}
	if !m.events.Enqueue(e) {
		atomic.AddInt64(&m.metrics.EventsDroppedQueueFullTotal, 1)
		return false
	}
	return true
}

// Enrich applies a sparse client patch to the visit identified by
// visitID. The buffered record is patched in place when present (the
// common case — enrichment arrives seconds after the page load, well
// inside the flush interval); otherwise the patch goes to the backend's
// keyed update, where an unknown identifier is a no-op.
func (m *Manager) Enrich(ctx context.Context, visitID string, patch *model.ClientInfo) {
	if visitID == "" || patch == nil {
		return
	}

	if m.visits.Enrich(visitID, patch) {
		atomic.AddInt64(&m.metrics.EnrichAppliedTotal, 1)
		return
	}

	atomic.AddInt64(&m.metrics.EnrichUnknownTotal, 1)
	if err := m.backend.UpdateVisit(ctx, visitID, patch); err != nil {
		zlog.Warn().Err(err).Str("visit_id", visitID).Msg("backend enrichment failed")
	}
}

// flushLoop drains and persists on a fixed interval until shutdown, then
// performs exactly one more unconditional drain-and-flush so buffered
// data is not lost under normal termination.
//
// Each cycle gets its own bounded context instead of the loop context: a
// flush already in progress when shutdown arrives is allowed to finish
// rather than be cut off mid-write.
func (m *Manager) flushLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.flushOnce(time.Now())
			zlog.Info().Msg("final flush complete")
			return

		case <-ticker.C:
			m.flushOnce(time.Now())
		}
	}
}

// flushOnce runs one full cycle: drain both queues, persist whatever was
// drained, then do the per-cycle maintenance (minute rotation, throttle
// judgement, stale-source sweep). Maintenance runs even when there was
// nothing to persist.
func (m *Manager) flushOnce(now time.Time) {
	visits := m.visits.DrainAll()
	events := m.events.DrainAll()

	if len(visits) > 0 || len(events) > 0 {
		atomic.AddInt64(&m.metrics.FlushCyclesTotal, 1)

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ShutdownTimeout)
		m.persist(ctx, visits, events)
		cancel()
	}

	res := m.detector.Check(now)
	if res.Rotated {
		m.gate.resetWindow()
	}
	if res.Throttled != m.throttled {
		m.throttled = res.Throttled
		if res.Throttled {
			atomic.AddInt64(&m.metrics.ThrottleEngagedTotal, 1)
			zlog.Warn().Msg("anomalous event volume, client events throttled")
		} else {
			zlog.Info().Msg("event volume normal, throttle cleared")
		}
	}

	m.limiter.Sweep(now)
	atomic.StoreInt64(&m.metrics.LimiterSourcesCurrent, int64(m.limiter.Sources()))
}

// persist writes the drained batches. On failure the batch is already
// out of the queues and is simply lost; the loss is counted and logged.
func (m *Manager) persist(ctx context.Context, visits []*model.VisitRecord, events []*model.TrackingEvent) {
	if len(visits) > 0 {
		if err := m.backend.SaveVisits(ctx, visits); err != nil {
			atomic.AddInt64(&m.metrics.StoreItemsLostTotal, int64(len(visits)))
			zlog.Error().Err(err).Int("lost", len(visits)).Msg("visit batch dropped")
		} else {
			atomic.AddInt64(&m.metrics.StoreVisitsStoredTotal, int64(len(visits)))
		}
	}

	if len(events) > 0 {
		if err := m.backend.SaveEvents(ctx, events); err != nil {
			atomic.AddInt64(&m.metrics.StoreItemsLostTotal, int64(len(events)))
			zlog.Error().Err(err).Int("lost", len(events)).Msg("event batch dropped")
		} else {
			atomic.AddInt64(&m.metrics.StoreEventsStoredTotal, int64(len(events)))
		}
	}
}
