package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

// errDuplicateDelivery aborts the transaction without rolling any
// prior effect back into an error response; duplicates are success.
var errDuplicateDelivery = errors.New("duplicate delivery")

type providerWebhookRequest interface {
	GetProvider() string
	GetSignature() string
	GetPayload() []byte
}

// HandleProviderWebhook runs one delivery through the full pipeline:
// signature verification, normalization, idempotency claim, state
// machine update, notification enqueue. Every outcome other than an
// authentication failure, malformed input, or a persistence failure is
// acknowledged so the processor stops retrying.
func (s *BillingService) HandleProviderWebhook(ctx context.Context, req providerWebhookRequest) error {
	providerName := strings.ToLower(strings.TrimSpace(req.GetProvider()))
	providerClient, err := s.providerReg.Get(providerName)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return ErrProviderUnsupported
		}
		return err
	}

	payload := req.GetPayload()
	signature := strings.TrimSpace(req.GetSignature())

	event, err := providerClient.VerifyAndParse(ctx, payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrNotConfigured):
			s.logger.WithField("provider", providerName).Error("webhook_provider_not_configured")
			return ErrProviderNotConfigured
		case errors.Is(err, provider.ErrSignatureInvalid):
			// Raw header kept for forensic review of forgery attempts.
			s.logger.WithFields(logrus.Fields{
				"provider":         providerName,
				"signature_header": signature,
			}).Warn("webhook_signature_rejected")
			s.persistDelivery(ctx, providerName, nil, signature, payload, entity.WebhookDeliveryRejected, err)
			return ErrSignatureRejected
		case errors.Is(err, provider.ErrEventConstruction):
			s.logger.WithFields(logrus.Fields{
				"provider":         providerName,
				"signature_header": signature,
			}).Warn("webhook_event_construction_failed")
			s.persistDelivery(ctx, providerName, nil, signature, payload, entity.WebhookDeliveryRejected, err)
			return ErrCallbackRejected
		case errors.Is(err, provider.ErrMalformedPayload):
			s.logger.WithError(err).WithField("provider", providerName).Warn("webhook_payload_malformed")
			s.persistDelivery(ctx, providerName, nil, signature, payload, entity.WebhookDeliveryRejected, err)
			return ErrMalformedPayload
		default:
			return err
		}
	}

	if event.Intent == provider.IntentUnrecognized {
		s.logger.WithFields(logrus.Fields{
			"provider":   providerName,
			"event_id":   event.EventID,
			"event_type": event.EventType,
		}).Info("webhook_event_ignored")
		s.persistDelivery(ctx, providerName, event, signature, payload, entity.WebhookDeliveryProcessed, nil)
		return nil
	}

	now := time.Now().UTC()
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		claim := &entity.ProcessedEvent{
			Provider:        providerName,
			ExternalEventID: event.EventID,
			ReceivedAt:      now,
		}
		if err := s.ledgerRepo.Claim(ctx, claim); err != nil {
			if errors.Is(err, repository.ErrEventAlreadyProcessed) {
				return errDuplicateDelivery
			}
			return err
		}
		return s.applyEvent(ctx, providerName, event, now)
	})
	if errors.Is(err, errDuplicateDelivery) {
		s.logger.WithFields(logrus.Fields{
			"provider": providerName,
			"event_id": event.EventID,
		}).Info("webhook_event_duplicate")
		s.persistDelivery(ctx, providerName, event, signature, payload, entity.WebhookDeliveryProcessed, nil)
		return nil
	}
	if err != nil {
		return err
	}

	s.persistDelivery(ctx, providerName, event, signature, payload, entity.WebhookDeliveryProcessed, nil)
	return nil
}

func (s *BillingService) applyEvent(ctx context.Context, providerName string, event *provider.Event, now time.Time) error {
	switch event.Intent {
	case provider.IntentPaymentSettled:
		return s.applyPaymentSettled(ctx, providerName, event, now)
	case provider.IntentPaymentForwarded:
		return s.applyPaymentForwarded(ctx, providerName, event, now)
	case provider.IntentPaymentExpired:
		return s.applyPaymentExpired(ctx, providerName, event, now)
	case provider.IntentSubscriptionActivated:
		return s.applySubscriptionActivated(ctx, event, now)
	case provider.IntentSubscriptionRenewed:
		return s.applySubscriptionRenewed(ctx, event, now)
	case provider.IntentSubscriptionCanceled:
		return s.applySubscriptionCanceled(ctx, event, now)
	case provider.IntentSubscriptionPastDue:
		return s.applySubscriptionPastDue(ctx, event, now)
	default:
		return nil
	}
}

// persistDelivery appends the raw callback to the audit trail. Audit
// failures never fail the webhook response.
func (s *BillingService) persistDelivery(
	ctx context.Context,
	providerName string,
	event *provider.Event,
	signature string,
	payload []byte,
	status int32,
	deliveryErr error,
) {
	delivery := &entity.WebhookDelivery{
		Provider:    providerName,
		Signature:   signature,
		PayloadJSON: string(payload),
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
	if event != nil && strings.TrimSpace(event.EventID) != "" {
		eventID := strings.TrimSpace(event.EventID)
		delivery.ExternalEventID = &eventID
	}
	if deliveryErr != nil {
		trimmed := truncate(deliveryErr.Error(), 1024)
		delivery.Error = &trimmed
	}
	_ = s.deliveryRepo.Create(ctx, delivery)
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
