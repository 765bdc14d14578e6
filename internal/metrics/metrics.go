package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics is the set of internal counters exposed on /metrics.
//
// Every admission rejection is silent on the data path, so these counters
// are the only operational visibility into what the gate is dropping and
// why. All fields are updated with sync/atomic; the struct is shared by
// the handlers, the gate and the flush loop.
type Metrics struct {
	// HTTP level.
	TrackRequestsTotal  int64 // /track requests seen
	EnrichRequestsTotal int64 // /enrich requests seen

	// Gate decisions for client events.
	EventsAdmittedTotal            int64 // passed all gate checks
	EventsRejectedQueueFullTotal   int64 // event queue at ceiling
	EventsRejectedThrottledTotal   int64 // anomaly throttle engaged
	EventsRejectedRateLimitedTotal int64 // per-source window exhausted
	EventsRejectedGlobalCapTotal   int64 // global per-minute cap exceeded

	// Buffer capacity drops (drop-newest).
	VisitsEnqueuedTotal         int64 // visit records buffered
	VisitsDroppedQueueFullTotal int64 // visit queue at ceiling
	EventsDroppedQueueFullTotal int64 // queue filled between gate check and enqueue

	// Flush cycle / persistence.
	FlushCyclesTotal       int64 // cycles that drained anything
	StoreVisitsStoredTotal int64 // visit records persisted
	StoreEventsStoredTotal int64 // tracking events persisted
	StoreWriteErrorsTotal  int64 // failed write attempts (per attempt, retries included)
	StoreItemsLostTotal    int64 // drained items dropped after a failed flush

	// Enrichment.
	EnrichAppliedTotal int64 // patches applied to a buffered record
	EnrichUnknownTotal int64 // unknown visit identifier, no-op

	// Anomaly detector.
	ThrottleEngagedTotal int64 // Normal -> Throttled transitions

	// Gauges, refreshed each flush cycle.
	LimiterSourcesCurrent int64 // tracked source windows
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "track_requests_total=%d\n", atomic.LoadInt64(&m.TrackRequestsTotal))
	fmt.Fprintf(&sb, "enrich_requests_total=%d\n", atomic.LoadInt64(&m.EnrichRequestsTotal))

	fmt.Fprintf(&sb, "events_admitted_total=%d\n", atomic.LoadInt64(&m.EventsAdmittedTotal))
	fmt.Fprintf(&sb, "events_rejected_queue_full_total=%d\n", atomic.LoadInt64(&m.EventsRejectedQueueFullTotal))
	fmt.Fprintf(&sb, "events_rejected_throttled_total=%d\n", atomic.LoadInt64(&m.EventsRejectedThrottledTotal))
	fmt.Fprintf(&sb, "events_rejected_rate_limited_total=%d\n", atomic.LoadInt64(&m.EventsRejectedRateLimitedTotal))
	fmt.Fprintf(&sb, "events_rejected_global_cap_total=%d\n", atomic.LoadInt64(&m.EventsRejectedGlobalCapTotal))

	fmt.Fprintf(&sb, "visits_enqueued_total=%d\n", atomic.LoadInt64(&m.VisitsEnqueuedTotal))
	fmt.Fprintf(&sb, "visits_dropped_queue_full_total=%d\n", atomic.LoadInt64(&m.VisitsDroppedQueueFullTotal))
	fmt.Fprintf(&sb, "events_dropped_queue_full_total=%d\n", atomic.LoadInt64(&m.EventsDroppedQueueFullTotal))

	fmt.Fprintf(&sb, "flush_cycles_total=%d\n", atomic.LoadInt64(&m.FlushCyclesTotal))
	fmt.Fprintf(&sb, "store_visits_stored_total=%d\n", atomic.LoadInt64(&m.StoreVisitsStoredTotal))
	fmt.Fprintf(&sb, "store_events_stored_total=%d\n", atomic.LoadInt64(&m.StoreEventsStoredTotal))
	fmt.Fprintf(&sb, "store_write_errors_total=%d\n", atomic.LoadInt64(&m.StoreWriteErrorsTotal))
	fmt.Fprintf(&sb, "store_items_lost_total=%d\n", atomic.LoadInt64(&m.StoreItemsLostTotal))

	fmt.Fprintf(&sb, "enrich_applied_total=%d\n", atomic.LoadInt64(&m.EnrichAppliedTotal))
	fmt.Fprintf(&sb, "enrich_unknown_total=%d\n", atomic.LoadInt64(&m.EnrichUnknownTotal))

	fmt.Fprintf(&sb, "throttle_engaged_total=%d\n", atomic.LoadInt64(&m.ThrottleEngagedTotal))
	fmt.Fprintf(&sb, "limiter_sources_current=%d\n", atomic.LoadInt64(&m.LimiterSourcesCurrent))

	return sb.String()
}
