package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, plan, status, current_period_start, current_period_end,
		cancel_at_period_end, external_customer_ref, external_subscription_ref, created_at, updated_at`

// Upsert keys on the user_id unique index. Preconditions are always
// checked against the persisted row at update time, so concurrent
// intents for the same user tolerate reordering.
func (r *SubscriptionRepository) Upsert(ctx context.Context, subscription *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			user_id, plan, status, current_period_start, current_period_end,
			cancel_at_period_end, external_customer_ref, external_subscription_ref,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			plan = VALUES(plan),
			status = VALUES(status),
			current_period_start = VALUES(current_period_start),
			current_period_end = VALUES(current_period_end),
			cancel_at_period_end = VALUES(cancel_at_period_end),
			external_customer_ref = VALUES(external_customer_ref),
			external_subscription_ref = VALUES(external_subscription_ref),
			updated_at = VALUES(updated_at)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		subscription.UserID,
		subscription.Plan,
		subscription.Status,
		nullableTimeValue(subscription.CurrentPeriodStart),
		nullableTimeValue(subscription.CurrentPeriodEnd),
		subscription.CancelAtPeriodEnd,
		nullableStringValue(subscription.ExternalCustomerRef),
		nullableStringValue(subscription.ExternalSubscriptionRef),
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	return err
}

func (r *SubscriptionRepository) Update(ctx context.Context, subscription *entity.Subscription) error {
	query := `
		UPDATE subscriptions SET
			plan = ?,
			status = ?,
			current_period_start = ?,
			current_period_end = ?,
			cancel_at_period_end = ?,
			external_customer_ref = ?,
			external_subscription_ref = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		subscription.Plan,
		subscription.Status,
		nullableTimeValue(subscription.CurrentPeriodStart),
		nullableTimeValue(subscription.CurrentPeriodEnd),
		subscription.CancelAtPeriodEnd,
		nullableStringValue(subscription.ExternalCustomerRef),
		nullableStringValue(subscription.ExternalSubscriptionRef),
		subscription.UpdatedAt,
		subscription.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

func (r *SubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ? LIMIT 1`

	subscription := &entity.Subscription{}
	if err := scanSubscription(conn(ctx, r.db).QueryRowContext(ctx, query, userID), subscription); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return subscription, nil
}

func (r *SubscriptionRepository) FindByCustomerRef(ctx context.Context, customerRef string) (*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE external_customer_ref = ? LIMIT 1`

	subscription := &entity.Subscription{}
	if err := scanSubscription(conn(ctx, r.db).QueryRowContext(ctx, query, customerRef), subscription); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return subscription, nil
}

func scanSubscription(scan rowScanner, subscription *entity.Subscription) error {
	var periodStart sql.NullTime
	var periodEnd sql.NullTime
	var customerRef sql.NullString
	var subscriptionRef sql.NullString

	err := scan.Scan(
		&subscription.ID,
		&subscription.UserID,
		&subscription.Plan,
		&subscription.Status,
		&periodStart,
		&periodEnd,
		&subscription.CancelAtPeriodEnd,
		&customerRef,
		&subscriptionRef,
		&subscription.CreatedAt,
		&subscription.UpdatedAt,
	)
	if err != nil {
		return err
	}

	subscription.CurrentPeriodStart = timePtrFromNull(periodStart)
	subscription.CurrentPeriodEnd = timePtrFromNull(periodEnd)
	subscription.ExternalCustomerRef = stringPtrFromNull(customerRef)
	subscription.ExternalSubscriptionRef = stringPtrFromNull(subscriptionRef)

	return nil
}
