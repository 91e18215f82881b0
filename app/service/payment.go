package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
)

// Payment lifecycle: pending → confirmed → forwarded, or pending →
// expired. No other edges. Stale or out-of-order deliveries hitting a
// closed edge are no-ops; an expiry against a settled payment is a
// conflict worth operator attention but never a downgrade.

func (s *BillingService) applyPaymentSettled(ctx context.Context, providerName string, event *provider.Event, now time.Time) error {
	payment, err := s.paymentRepo.FindByExternalID(ctx, providerName, event.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		s.logPaymentOrphan(providerName, event)
		return nil
	}

	if payment.Status != entity.PaymentStatusPending {
		s.logger.WithFields(logrus.Fields{
			"provider":            providerName,
			"external_payment_id": payment.ExternalPaymentID,
			"status":              payment.Status,
		}).Info("payment_settle_noop")
		return nil
	}

	payment.Status = entity.PaymentStatusConfirmed
	if amount := strings.TrimSpace(event.AmountCrypto); amount != "" {
		payment.AmountCrypto = &amount
	}
	if event.AmountFiatCents > 0 {
		payment.AmountFiatCents = event.AmountFiatCents
	}
	payment.UpdatedAt = now

	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return err
	}

	// Settling a subscription-type payment activates the owning
	// user's subscription as a dependent effect of the same unit of
	// work.
	if payment.Type == entity.PaymentTypeSubscription {
		if err := s.activateSubscription(ctx, payment.OwnerUserID, subscriptionActivation{}, now); err != nil {
			return err
		}
	}

	return s.enqueueNotification(ctx, payment.OwnerUserID, entity.NotificationKindPaymentReceived, map[string]interface{}{
		"external_payment_id": payment.ExternalPaymentID,
		"amount_crypto":       event.AmountCrypto,
		"amount_fiat_cents":   payment.AmountFiatCents,
		"currency":            payment.Currency,
	}, now)
}

func (s *BillingService) applyPaymentForwarded(ctx context.Context, providerName string, event *provider.Event, now time.Time) error {
	payment, err := s.paymentRepo.FindByExternalID(ctx, providerName, event.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		s.logPaymentOrphan(providerName, event)
		return nil
	}

	if entity.TerminalPaymentStatus(payment.Status) {
		if payment.Status == entity.PaymentStatusForwarded {
			return nil
		}
		s.logPaymentConflict(providerName, payment, event)
		return nil
	}

	// Forwarding can legitimately arrive before the confirmation, so
	// the transition is accepted from any non-terminal status.
	if txHash := strings.TrimSpace(event.TxHash); txHash != "" {
		payment.TxHash = &txHash
	}
	if forwarded := strings.TrimSpace(event.ForwardedTxHash); forwarded != "" {
		payment.ForwardedTxHash = &forwarded
	}
	payment.Status = entity.PaymentStatusForwarded
	payment.UpdatedAt = now

	return s.paymentRepo.Update(ctx, payment)
}

func (s *BillingService) applyPaymentExpired(ctx context.Context, providerName string, event *provider.Event, now time.Time) error {
	payment, err := s.paymentRepo.FindByExternalID(ctx, providerName, event.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		s.logPaymentOrphan(providerName, event)
		return nil
	}

	switch payment.Status {
	case entity.PaymentStatusPending:
	case entity.PaymentStatusExpired:
		return nil
	default:
		// A late timeout event must never take down a settled
		// payment; this is an ordering anomaly, not a transition.
		s.logPaymentConflict(providerName, payment, event)
		return nil
	}

	payment.Status = entity.PaymentStatusExpired
	payment.UpdatedAt = now

	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return err
	}

	return s.enqueueNotification(ctx, payment.OwnerUserID, entity.NotificationKindPaymentExpired, map[string]interface{}{
		"external_payment_id": payment.ExternalPaymentID,
	}, now)
}

func (s *BillingService) logPaymentOrphan(providerName string, event *provider.Event) {
	s.logger.WithFields(logrus.Fields{
		"provider":            providerName,
		"event_id":            event.EventID,
		"event_type":          event.EventType,
		"external_payment_id": event.PaymentID,
	}).Warn("payment_orphan")
}

func (s *BillingService) logPaymentConflict(providerName string, payment *entity.Payment, event *provider.Event) {
	s.logger.WithFields(logrus.Fields{
		"provider":            providerName,
		"event_id":            event.EventID,
		"event_type":          event.EventType,
		"external_payment_id": payment.ExternalPaymentID,
		"status":              payment.Status,
	}).Error("payment_conflict")
}
