package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			notification_id, user_id, kind, payload_json,
			delivery_status, delivery_attempts, delivery_next_at, delivery_last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		notification.NotificationID,
		notification.UserID,
		notification.Kind,
		notification.PayloadJSON,
		notification.DeliveryStatus,
		notification.DeliveryAttempts,
		nullableTimeValue(notification.DeliveryNextAt),
		nullableStringValue(notification.DeliveryLastErr),
		notification.CreatedAt,
		notification.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	notification.ID = uint64(id)

	return nil
}

func (r *NotificationRepository) Update(ctx context.Context, notification *entity.Notification) error {
	query := `
		UPDATE notifications SET
			delivery_status = ?,
			delivery_attempts = ?,
			delivery_next_at = ?,
			delivery_last_error = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		notification.DeliveryStatus,
		notification.DeliveryAttempts,
		nullableTimeValue(notification.DeliveryNextAt),
		nullableStringValue(notification.DeliveryLastErr),
		notification.UpdatedAt,
		notification.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

func (r *NotificationRepository) ListDueDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Notification, error) {
	query := `
		SELECT id, notification_id, user_id, kind, payload_json,
			delivery_status, delivery_attempts, delivery_next_at, delivery_last_error,
			created_at, updated_at
		FROM notifications
		WHERE delivery_status = ?
		  AND delivery_next_at IS NOT NULL
		  AND delivery_next_at <= ?
		ORDER BY delivery_next_at ASC
		LIMIT ?
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, entity.NotificationDeliveryPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]*entity.Notification, 0)
	for rows.Next() {
		item := &entity.Notification{}
		if err := scanNotification(rows, item); err != nil {
			return nil, err
		}
		notifications = append(notifications, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

func scanNotification(scan rowScanner, notification *entity.Notification) error {
	var nextAt sql.NullTime
	var lastErr sql.NullString

	err := scan.Scan(
		&notification.ID,
		&notification.NotificationID,
		&notification.UserID,
		&notification.Kind,
		&notification.PayloadJSON,
		&notification.DeliveryStatus,
		&notification.DeliveryAttempts,
		&nextAt,
		&lastErr,
		&notification.CreatedAt,
		&notification.UpdatedAt,
	)
	if err != nil {
		return err
	}

	notification.DeliveryNextAt = timePtrFromNull(nextAt)
	notification.DeliveryLastErr = stringPtrFromNull(lastErr)

	return nil
}
