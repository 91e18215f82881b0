package entity

import "time"

const (
	WebhookDeliveryProcessed int32 = 10
	WebhookDeliveryRejected  int32 = 20
)

// WebhookDelivery is the raw-callback audit trail: every inbound
// webhook body is persisted with its signature and outcome, including
// the ones rejected before any state mutation.
type WebhookDelivery struct {
	ID uint64

	Provider        string
	ExternalEventID *string
	Signature       string
	PayloadJSON     string
	Status          int32
	Error           *string

	CreatedAt time.Time
}
