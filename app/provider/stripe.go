package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

const StripeProviderName = "stripe"

type StripeConfig struct {
	WebhookSecret string
}

// StripeProvider delegates verification to the official SDK's
// construct-and-verify routine; its own job is only to convert SDK
// failures into an event-construction outcome and to normalize the
// event envelope onto the internal intent set.
type StripeProvider struct {
	cfg StripeConfig
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	return &StripeProvider{cfg: cfg}
}

func (p *StripeProvider) Name() string {
	return StripeProviderName
}

func (p *StripeProvider) VerifyAndParse(_ context.Context, payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, ErrNotConfigured
	}

	stripeEvent, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventConstruction, err)
	}

	event := &Event{
		EventID:   stripeEvent.ID,
		EventType: string(stripeEvent.Type),
	}

	switch stripeEvent.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(stripeEvent.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		event.Intent = IntentSubscriptionActivated
		event.UserID = checkoutSessionUserID(&session)
		if session.Customer != nil {
			event.CustomerRef = session.Customer.ID
		}
		if session.Subscription != nil {
			event.SubscriptionRef = session.Subscription.ID
		}
		event.AmountFiatCents = session.AmountTotal
		event.Currency = strings.ToUpper(string(session.Currency))

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(stripeEvent.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		event.Intent = IntentSubscriptionRenewed
		event.SubscriptionRef = sub.ID
		if sub.Customer != nil {
			event.CustomerRef = sub.Customer.ID
		}
		event.SubscriptionStatus = mapStripeSubscriptionStatus(sub.Status)
		event.PeriodStart = unixTimePtr(sub.CurrentPeriodStart)
		event.PeriodEnd = unixTimePtr(sub.CurrentPeriodEnd)
		event.CancelAtPeriodEnd = sub.CancelAtPeriodEnd

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(stripeEvent.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		event.Intent = IntentSubscriptionCanceled
		event.SubscriptionRef = sub.ID
		if sub.Customer != nil {
			event.CustomerRef = sub.Customer.ID
		}

	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(stripeEvent.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		event.Intent = IntentSubscriptionRenewed
		event.InvoiceID = invoice.ID
		if invoice.Customer != nil {
			event.CustomerRef = invoice.Customer.ID
		}
		if invoice.Subscription != nil {
			event.SubscriptionRef = invoice.Subscription.ID
		}
		event.SubscriptionStatus = entity.SubscriptionStatusActive
		event.AmountFiatCents = invoice.AmountPaid
		event.Currency = strings.ToUpper(string(invoice.Currency))
		assignInvoicePeriod(event, &invoice)

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(stripeEvent.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		event.Intent = IntentSubscriptionPastDue
		event.InvoiceID = invoice.ID
		if invoice.Customer != nil {
			event.CustomerRef = invoice.Customer.ID
		}
		if invoice.Subscription != nil {
			event.SubscriptionRef = invoice.Subscription.ID
		}

	default:
		event.Intent = IntentUnrecognized
	}

	return event, nil
}

func checkoutSessionUserID(session *stripe.CheckoutSession) string {
	if userID := strings.TrimSpace(session.ClientReferenceID); userID != "" {
		return userID
	}
	return strings.TrimSpace(session.Metadata["user_id"])
}

// The card processor is authoritative on its own cycle, so unknown
// statuses map to incomplete instead of failing the event.
func mapStripeSubscriptionStatus(status stripe.SubscriptionStatus) int32 {
	switch status {
	case stripe.SubscriptionStatusActive:
		return entity.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return entity.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return entity.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return entity.SubscriptionStatusCanceled
	default:
		return entity.SubscriptionStatusIncomplete
	}
}

func assignInvoicePeriod(event *Event, invoice *stripe.Invoice) {
	if invoice.Lines != nil && len(invoice.Lines.Data) > 0 && invoice.Lines.Data[0].Period != nil {
		event.PeriodStart = unixTimePtr(invoice.Lines.Data[0].Period.Start)
		event.PeriodEnd = unixTimePtr(invoice.Lines.Data[0].Period.End)
		return
	}
	event.PeriodStart = unixTimePtr(invoice.PeriodStart)
	event.PeriodEnd = unixTimePtr(invoice.PeriodEnd)
}

func unixTimePtr(unix int64) *time.Time {
	if unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}
