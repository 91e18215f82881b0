package provider

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProviderNotSupported = errors.New("provider is not supported")
	ErrNotConfigured        = errors.New("provider webhook secret is not configured")
	ErrSignatureInvalid     = errors.New("webhook signature is invalid")
	ErrEventConstruction    = errors.New("webhook event construction failed")
	ErrMalformedPayload     = errors.New("webhook payload is malformed")
)

// Intent is the closed internal vocabulary both processors are mapped
// onto. Everything downstream of the providers is intent-driven and
// provider-agnostic.
type Intent int32

const (
	IntentUnrecognized Intent = iota
	IntentPaymentSettled
	IntentPaymentForwarded
	IntentPaymentExpired
	IntentSubscriptionActivated
	IntentSubscriptionRenewed
	IntentSubscriptionCanceled
	IntentSubscriptionPastDue
)

func (i Intent) String() string {
	switch i {
	case IntentPaymentSettled:
		return "payment_settled"
	case IntentPaymentForwarded:
		return "payment_forwarded"
	case IntentPaymentExpired:
		return "payment_expired"
	case IntentSubscriptionActivated:
		return "subscription_activated"
	case IntentSubscriptionRenewed:
		return "subscription_renewed"
	case IntentSubscriptionCanceled:
		return "subscription_canceled"
	case IntentSubscriptionPastDue:
		return "subscription_past_due"
	default:
		return "unrecognized"
	}
}

// Event is one verified, normalized webhook delivery. EventID is the
// provider's own event id and feeds the idempotency ledger; the
// subject fields carry whichever reference the target state machine
// needs to look up its row.
type Event struct {
	EventID   string
	EventType string
	Intent    Intent

	PaymentID       string
	UserID          string
	CustomerRef     string
	SubscriptionRef string
	InvoiceID       string

	AmountCrypto    string
	AmountFiatCents int64
	Currency        string

	TxHash          string
	ForwardedTxHash string

	SubscriptionStatus int32
	PeriodStart        *time.Time
	PeriodEnd          *time.Time
	CancelAtPeriodEnd  bool
}

type Provider interface {
	Name() string
	VerifyAndParse(ctx context.Context, payload []byte, signature string) (*Event, error)
}
