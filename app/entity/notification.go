package entity

import "time"

const (
	NotificationDeliveryPending int32 = 1
	NotificationDeliverySuccess int32 = 10
	NotificationDeliveryFailed  int32 = 20
)

const (
	NotificationKindPaymentReceived       = "payment_received"
	NotificationKindPaymentExpired        = "payment_expired"
	NotificationKindSubscriptionActivated = "subscription_activated"
	NotificationKindSubscriptionRenewed   = "subscription_renewed"
	NotificationKindSubscriptionPastDue   = "subscription_past_due"
	NotificationKindSubscriptionCanceled  = "subscription_canceled"
)

// Notification is an outbox row for one user-facing message. Rows are
// inserted in the same transaction as the state mutation that caused
// them, so a notification exists exactly once per real transition.
type Notification struct {
	ID uint64

	NotificationID string
	UserID         string
	Kind           string
	PayloadJSON    string

	DeliveryStatus   int32
	DeliveryAttempts int32
	DeliveryNextAt   *time.Time
	DeliveryLastErr  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
