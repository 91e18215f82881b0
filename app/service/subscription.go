package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
)

// cryptoActivationPeriod is the fixed cadence for activations that
// carry no processor-supplied billing cycle.
const cryptoActivationPeriod = 30 * 24 * time.Hour

type subscriptionActivation struct {
	customerRef     string
	subscriptionRef string
	periodStart     *time.Time
	periodEnd       *time.Time
}

// activateSubscription upserts the user's single subscription row to
// plan=pro/active. The period comes from the processor when supplied,
// otherwise the fixed monthly window starting now.
func (s *BillingService) activateSubscription(ctx context.Context, userID string, act subscriptionActivation, now time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		s.logger.Warn("subscription_activation_without_user")
		return nil
	}

	subscription, err := s.subscriptionRepo.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if subscription == nil {
		subscription = &entity.Subscription{
			UserID:    userID,
			CreatedAt: now,
		}
	}

	periodStart := now
	periodEnd := now.Add(cryptoActivationPeriod)
	if act.periodStart != nil {
		periodStart = *act.periodStart
	}
	if act.periodEnd != nil {
		periodEnd = *act.periodEnd
	}

	subscription.Plan = entity.PlanPro
	subscription.Status = entity.SubscriptionStatusActive
	subscription.CurrentPeriodStart = &periodStart
	subscription.CurrentPeriodEnd = &periodEnd
	subscription.CancelAtPeriodEnd = false
	if ref := strings.TrimSpace(act.customerRef); ref != "" {
		subscription.ExternalCustomerRef = &ref
	}
	if ref := strings.TrimSpace(act.subscriptionRef); ref != "" {
		subscription.ExternalSubscriptionRef = &ref
	}
	subscription.UpdatedAt = now

	return s.subscriptionRepo.Upsert(ctx, subscription)
}

func (s *BillingService) applySubscriptionActivated(ctx context.Context, event *provider.Event, now time.Time) error {
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		s.logSubscriptionOrphan(event)
		return nil
	}

	if err := s.activateSubscription(ctx, userID, subscriptionActivation{
		customerRef:     event.CustomerRef,
		subscriptionRef: event.SubscriptionRef,
		periodStart:     event.PeriodStart,
		periodEnd:       event.PeriodEnd,
	}, now); err != nil {
		return err
	}

	return s.enqueueNotification(ctx, userID, entity.NotificationKindSubscriptionActivated, map[string]interface{}{
		"amount_fiat_cents": event.AmountFiatCents,
		"currency":          event.Currency,
	}, now)
}

// applySubscriptionRenewed overwrites period fields and status
// verbatim from the processor, which is authoritative on its own
// billing cycle. A canceled status is the one exception and routes
// through the cancel transition instead.
func (s *BillingService) applySubscriptionRenewed(ctx context.Context, event *provider.Event, now time.Time) error {
	subscription, err := s.findByCustomerRef(ctx, event)
	if err != nil || subscription == nil {
		return err
	}

	// The card processor also reports cancellations through
	// subscription update events. Those must take the cancel
	// transition, never a verbatim overwrite that would leave a pro
	// plan on a canceled row.
	if event.SubscriptionStatus == entity.SubscriptionStatusCanceled {
		return s.applySubscriptionCanceled(ctx, event, now)
	}

	if event.SubscriptionStatus > 0 {
		subscription.Status = event.SubscriptionStatus
	}
	if event.PeriodStart != nil {
		subscription.CurrentPeriodStart = event.PeriodStart
	}
	if event.PeriodEnd != nil {
		subscription.CurrentPeriodEnd = event.PeriodEnd
	}
	subscription.CancelAtPeriodEnd = event.CancelAtPeriodEnd
	if ref := strings.TrimSpace(event.SubscriptionRef); ref != "" {
		subscription.ExternalSubscriptionRef = &ref
	}
	subscription.UpdatedAt = now

	if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
		return err
	}

	return s.enqueueNotification(ctx, subscription.UserID, entity.NotificationKindSubscriptionRenewed, map[string]interface{}{
		"invoice_id":        event.InvoiceID,
		"amount_fiat_cents": event.AmountFiatCents,
		"currency":          event.Currency,
	}, now)
}

// applySubscriptionPastDue flips only the status; the user keeps Pro
// access until an explicit cancellation arrives.
func (s *BillingService) applySubscriptionPastDue(ctx context.Context, event *provider.Event, now time.Time) error {
	subscription, err := s.findByCustomerRef(ctx, event)
	if err != nil || subscription == nil {
		return err
	}

	if subscription.Status == entity.SubscriptionStatusPastDue {
		return nil
	}

	subscription.Status = entity.SubscriptionStatusPastDue
	subscription.UpdatedAt = now

	if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
		return err
	}

	return s.enqueueNotification(ctx, subscription.UserID, entity.NotificationKindSubscriptionPastDue, map[string]interface{}{
		"invoice_id": event.InvoiceID,
	}, now)
}

// applySubscriptionCanceled reverts the row to the free plan and
// clears the external refs and period fields so stale dates can never
// be displayed. The row itself persists for history.
func (s *BillingService) applySubscriptionCanceled(ctx context.Context, event *provider.Event, now time.Time) error {
	subscription, err := s.findByCustomerRef(ctx, event)
	if err != nil || subscription == nil {
		return err
	}

	if subscription.Status == entity.SubscriptionStatusCanceled {
		return nil
	}

	subscription.Plan = entity.PlanFree
	subscription.Status = entity.SubscriptionStatusCanceled
	subscription.CurrentPeriodStart = nil
	subscription.CurrentPeriodEnd = nil
	subscription.CancelAtPeriodEnd = false
	subscription.ExternalSubscriptionRef = nil
	subscription.UpdatedAt = now

	if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
		return err
	}

	return s.enqueueNotification(ctx, subscription.UserID, entity.NotificationKindSubscriptionCanceled, map[string]interface{}{}, now)
}

// findByCustomerRef resolves the subscription row a card-path update
// refers to. A missing row is expected noise (test traffic, races with
// account deletion) and must never grow an orphaned subscription out
// of partial data.
func (s *BillingService) findByCustomerRef(ctx context.Context, event *provider.Event) (*entity.Subscription, error) {
	customerRef := strings.TrimSpace(event.CustomerRef)
	if customerRef == "" {
		s.logSubscriptionOrphan(event)
		return nil, nil
	}

	subscription, err := s.subscriptionRepo.FindByCustomerRef(ctx, customerRef)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		s.logSubscriptionOrphan(event)
		return nil, nil
	}

	return subscription, nil
}

func (s *BillingService) logSubscriptionOrphan(event *provider.Event) {
	s.logger.WithFields(logrus.Fields{
		"event_id":         event.EventID,
		"event_type":       event.EventType,
		"customer_ref":     event.CustomerRef,
		"subscription_ref": event.SubscriptionRef,
	}).Warn("subscription_orphan")
}
