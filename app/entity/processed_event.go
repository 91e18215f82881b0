package entity

import "time"

// ProcessedEvent is the idempotency ledger: one row per applied
// provider event. The composite (provider, external_event_id) unique
// key is what makes duplicate and retried deliveries safe. Rows are
// append-only and garbage-collected after a retention window longer
// than the processors' maximum retry window.
type ProcessedEvent struct {
	ID uint64

	Provider        string
	ExternalEventID string

	ReceivedAt time.Time
}
