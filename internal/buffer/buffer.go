// internal/buffer/buffer.go
package buffer

import (
	"sync"

	"sitetrack/internal/model"
)

// Two bounded FIFOs decouple request handling from the flush cycle.
// Enqueue never blocks: at capacity the incoming item is dropped
// (drop-newest) so already-returned admission results stay valid.
// DrainAll swaps the backing slice under the lock, so an item enqueued
// after the swap can never appear in that drain's batch and nothing but
// a capacity drop ever discards an enqueued item.

// EventQueue is the bounded FIFO for tracking events.
type EventQueue struct {
	mu    sync.Mutex
	items []*model.TrackingEvent
	cap   int
}

// NewEventQueue returns an event FIFO holding at most capacity items.
func NewEventQueue(capacity int) *EventQueue {
	return &EventQueue{
		items: make([]*model.TrackingEvent, 0, capacity),
		cap:   capacity,
	}
}

// Enqueue appends e, or drops it and returns false when full.
func (q *EventQueue) Enqueue(e *model.TrackingEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.cap {
		return false
	}
	q.items = append(q.items, e)
	return true
}

// DrainAll removes and returns every queued event, leaving the queue
// empty. Ownership of the batch transfers to the caller.
func (q *EventQueue) DrainAll() []*model.TrackingEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = make([]*model.TrackingEvent, 0, q.cap)
	return out
}

// Full reports whether the queue is at capacity.
func (q *EventQueue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) >= q.cap
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// VisitQueue is the bounded FIFO for visit records. It additionally
// indexes buffered records by visit identifier so the enrichment path can
// patch a record in place before it is flushed. The index points at the
// latest record for each identifier (the page that will send the
// enrichment) and is cleared on drain, after which the identifier is
// unknown here and enrichment falls through to the store.
type VisitQueue struct {
	mu    sync.Mutex
	items []*model.VisitRecord
	index map[string]*model.VisitRecord
	cap   int
}

// NewVisitQueue returns a visit FIFO holding at most capacity records.
func NewVisitQueue(capacity int) *VisitQueue {
	return &VisitQueue{
		items: make([]*model.VisitRecord, 0, capacity),
		index: make(map[string]*model.VisitRecord),
		cap:   capacity,
	}
}

// Enqueue appends v, or drops it and returns false when full.
func (q *VisitQueue) Enqueue(v *model.VisitRecord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.cap {
		return false
	}
	q.items = append(q.items, v)
	if v.VisitID != "" {
		q.index[v.VisitID] = v
	}
	return true
}

// Enrich patches the buffered record for visitID with the set fields of
// patch. Returns false when no record for that identifier is buffered.
// The patch is applied under the queue lock, so it cannot race a drain:
// a record is either patched before the snapshot or not at all.
func (q *VisitQueue) Enrich(visitID string, patch *model.ClientInfo) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	v, ok := q.index[visitID]
	if !ok {
		return false
	}
	v.ApplyEnrichment(patch)
	return true
}

// DrainAll removes and returns every queued record, leaving the queue and
// the enrichment index empty.
func (q *VisitQueue) DrainAll() []*model.VisitRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = make([]*model.VisitRecord, 0, q.cap)
	q.index = make(map[string]*model.VisitRecord)
	return out
}

// Len returns the number of queued records.
func (q *VisitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
