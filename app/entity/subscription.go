package entity

import "time"

const (
	SubscriptionStatusActive     int32 = 1
	SubscriptionStatusTrialing   int32 = 2
	SubscriptionStatusPastDue    int32 = 3
	SubscriptionStatusCanceled   int32 = 4
	SubscriptionStatusIncomplete int32 = 5
)

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Subscription is the single per-user subscription row. Either
// processor may own it over time, so it is keyed by user id and looked
// up by external_customer_ref for card-path updates. Canceled rows
// persist with plan=free for history.
type Subscription struct {
	ID uint64

	UserID string

	Plan   string
	Status int32

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool

	ExternalCustomerRef     *string
	ExternalSubscriptionRef *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
