package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type WebhookDeliveryRepository struct {
	db DBTX
}

func NewWebhookDeliveryRepository(db DBTX) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{db: db}
}

func (r *WebhookDeliveryRepository) Create(ctx context.Context, delivery *entity.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			provider, external_event_id, signature, payload_json, status, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		delivery.Provider,
		nullableStringValue(delivery.ExternalEventID),
		delivery.Signature,
		delivery.PayloadJSON,
		delivery.Status,
		nullableStringValue(delivery.Error),
		delivery.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	delivery.ID = uint64(id)

	return nil
}
