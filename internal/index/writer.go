package index

import (
	"context"

	"skywatch/indexer/internal/models"
)

// Writer is the persistence facade for enriched flight records. Upsert is
// the idempotency boundary: writes are atomic, keyed by flight_id, and
// replace-if-newer by last_updated, so overlapping cycles converge without
// external locking.
type Writer interface {
	// EnsureIndex prepares the backing index (mapping, table). Idempotent.
	EnsureIndex(ctx context.Context) error

	// Upsert writes the record if the store does not hold a newer
	// last_updated for the same flight_id. A store-side conflict is a
	// benign no-op, not an error.
	Upsert(ctx context.Context, record *models.FlightRecord) error

	// Get reads the stored record back by flight id, or nil when absent.
	Get(ctx context.Context, flightID string) (*models.FlightRecord, error)
}
