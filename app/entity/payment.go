package entity

import "time"

const (
	PaymentStatusPending   int32 = 1
	PaymentStatusConfirmed int32 = 2
	PaymentStatusForwarded int32 = 3
	PaymentStatusExpired   int32 = 4
)

const (
	PaymentTypeOneTime      = "one_time"
	PaymentTypeSubscription = "subscription"
)

// Payment is one processor-side payment attempt. Rows are created by
// the payment-initiation flow and only mutated here in response to
// verified webhook intents; they are never deleted.
type Payment struct {
	ID uint64

	ExternalPaymentID string
	Provider          string

	OwnerUserID string
	Type        string

	Status int32

	AmountCrypto    *string
	AmountFiatCents int64
	Currency        string

	TxHash          *string
	ForwardedTxHash *string

	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TerminalPaymentStatus reports whether no further transition is
// accepted from the given status.
func TerminalPaymentStatus(status int32) bool {
	switch status {
	case PaymentStatusForwarded, PaymentStatusExpired:
		return true
	default:
		return false
	}
}
