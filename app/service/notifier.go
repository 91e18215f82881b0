package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

// enqueueNotification inserts an outbox row inside the caller's
// transaction. State machines call it exactly once per real
// transition; duplicate deliveries never reach this point because the
// idempotency claim filtered them, so the at-most-once guarantee holds
// without any dedup logic here.
func (s *BillingService) enqueueNotification(ctx context.Context, userID, kind string, payload map[string]interface{}, now time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return s.notificationRepo.Create(ctx, &entity.Notification{
		NotificationID: uuid.NewString(),
		UserID:         userID,
		Kind:           kind,
		PayloadJSON:    string(body),
		DeliveryStatus: entity.NotificationDeliveryPending,
		DeliveryNextAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}
