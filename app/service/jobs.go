package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

// RunDispatchNotificationsBatch pushes due outbox rows to the
// notification service. Delivery is at-least-once from here on; the
// receiving service keys on notification_id to stay idempotent.
func (s *BillingService) RunDispatchNotificationsBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.notificationRepo.ListDueDispatch(ctx, now, s.notificationsBatchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, notification := range items {
		if notification == nil {
			continue
		}
		if err := s.dispatchNotification(ctx, notification, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunLedgerGCBatch deletes processed-event rows older than the
// retention window. The window exceeds the processors' maximum retry
// window, so a collected event id can no longer be redelivered.
func (s *BillingService) RunLedgerGCBatch(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.ledgerCfg.Retention)
	deleted, err := s.ledgerRepo.DeleteOlderThan(ctx, cutoff, s.ledgerBatchSize())
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"cutoff":  cutoff.Format(time.RFC3339),
		"deleted": deleted,
	}).Info("ledger_gc_batch")

	return nil
}

func (s *BillingService) dispatchNotification(ctx context.Context, notification *entity.Notification, now time.Time) error {
	if strings.TrimSpace(s.notificationsCfg.ServiceURL) == "" {
		errMsg := "notifications service url is empty"
		notification.DeliveryStatus = entity.NotificationDeliveryFailed
		notification.DeliveryNextAt = nil
		notification.DeliveryLastErr = &errMsg
		notification.UpdatedAt = now
		return s.notificationRepo.Update(ctx, notification)
	}

	body, err := json.Marshal(map[string]interface{}{
		"notification_id": notification.NotificationID,
		"user_id":         notification.UserID,
		"kind":            notification.Kind,
		"payload":         json.RawMessage(notification.PayloadJSON),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.notificationsCfg.ServiceURL, bytes.NewReader(body))
	if err != nil {
		return s.recordDispatchFailure(ctx, notification, now, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", notification.NotificationID)
	if s.notificationsCfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.notificationsCfg.APIKey)
	}

	resp, err := s.dispatchHTTP.Do(req)
	if err != nil {
		return s.recordDispatchFailure(ctx, notification, now, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.recordDispatchFailure(ctx, notification, now, fmt.Errorf("notifications endpoint returned status=%d", resp.StatusCode))
	}

	notification.DeliveryStatus = entity.NotificationDeliverySuccess
	notification.DeliveryNextAt = nil
	notification.DeliveryLastErr = nil
	notification.UpdatedAt = now

	return s.notificationRepo.Update(ctx, notification)
}

func (s *BillingService) recordDispatchFailure(ctx context.Context, notification *entity.Notification, now time.Time, dispatchErr error) error {
	notification.DeliveryAttempts++
	trimmed := truncate(dispatchErr.Error(), 1024)
	notification.DeliveryLastErr = &trimmed

	maxAttempts := s.notificationsCfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if notification.DeliveryAttempts >= maxAttempts {
		notification.DeliveryStatus = entity.NotificationDeliveryFailed
		notification.DeliveryNextAt = nil
	} else {
		retryInterval := s.notificationsCfg.RetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		notification.DeliveryStatus = entity.NotificationDeliveryPending
		notification.DeliveryNextAt = &next
	}
	notification.UpdatedAt = now

	if err := s.notificationRepo.Update(ctx, notification); err != nil {
		return err
	}

	return dispatchErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
