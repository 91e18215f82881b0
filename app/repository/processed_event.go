package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrEventAlreadyProcessed = errors.New("event already processed")

type ProcessedEventRepository struct {
	db DBTX
}

func NewProcessedEventRepository(db DBTX) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: db}
}

// Claim is the atomic insert-if-absent on the idempotency ledger. The
// loser of a concurrent duplicate race observes the unique-constraint
// violation and gets ErrEventAlreadyProcessed, never the raw driver
// error.
func (r *ProcessedEventRepository) Claim(ctx context.Context, event *entity.ProcessedEvent) error {
	query := `
		INSERT INTO processed_events (provider, external_event_id, received_at)
		VALUES (?, ?, ?)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		event.Provider,
		event.ExternalEventID,
		event.ReceivedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrEventAlreadyProcessed
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}

func (r *ProcessedEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int32) (int64, error) {
	query := `DELETE FROM processed_events WHERE received_at <= ? LIMIT ?`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, cutoff, limit)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
