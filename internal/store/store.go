// internal/store/store.go
package store

import (
	"context"

	"sitetrack/internal/model"
)

// Backend is the persistence contract the flush loop writes to. The
// backend is reached asynchronously and may be down; callers treat a
// returned error as "this batch is lost" and never retry it. Nothing the
// backend does may block admission.
type Backend interface {
	// SaveVisits persists one drained visit batch.
	SaveVisits(ctx context.Context, visits []*model.VisitRecord) error

	// SaveEvents persists one drained event batch.
	SaveEvents(ctx context.Context, events []*model.TrackingEvent) error

	// UpdateVisit applies a sparse enrichment patch to the stored record
	// for visitID. Unknown identifiers are a no-op, never an insert.
	UpdateVisit(ctx context.Context, visitID string, patch *model.ClientInfo) error
}
