package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
	"github.com/vibast-solutions/ms-go-billing/config"
)

type servicePaymentRepo struct {
	payments map[uint64]*entity.Payment
	updates  int
}

func newServicePaymentRepo() *servicePaymentRepo {
	return &servicePaymentRepo{payments: map[uint64]*entity.Payment{}}
}

func (r *servicePaymentRepo) FindByID(_ context.Context, id uint64) (*entity.Payment, error) {
	item, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *servicePaymentRepo) FindByExternalID(_ context.Context, providerName, externalPaymentID string) (*entity.Payment, error) {
	for _, item := range r.payments {
		if item.Provider == providerName && item.ExternalPaymentID == externalPaymentID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *servicePaymentRepo) Update(_ context.Context, payment *entity.Payment) error {
	if _, ok := r.payments[payment.ID]; !ok {
		return repository.ErrPaymentNotFound
	}
	copyItem := *payment
	r.payments[payment.ID] = &copyItem
	r.updates++
	return nil
}

func (r *servicePaymentRepo) List(_ context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error) {
	items := make([]*entity.Payment, 0)
	for _, item := range r.payments {
		if filter.OwnerUserID != "" && item.OwnerUserID != filter.OwnerUserID {
			continue
		}
		if filter.Provider != "" && item.Provider != filter.Provider {
			continue
		}
		if filter.Type != "" && item.Type != filter.Type {
			continue
		}
		if filter.HasStatus && item.Status != filter.Status {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	return items, nil
}

type serviceSubscriptionRepo struct {
	subscriptions map[string]*entity.Subscription
	upserts       int
	updates       int
}

func newServiceSubscriptionRepo() *serviceSubscriptionRepo {
	return &serviceSubscriptionRepo{subscriptions: map[string]*entity.Subscription{}}
}

func (r *serviceSubscriptionRepo) Upsert(_ context.Context, subscription *entity.Subscription) error {
	copyItem := *subscription
	r.subscriptions[subscription.UserID] = &copyItem
	r.upserts++
	return nil
}

func (r *serviceSubscriptionRepo) Update(_ context.Context, subscription *entity.Subscription) error {
	if _, ok := r.subscriptions[subscription.UserID]; !ok {
		return repository.ErrSubscriptionNotFound
	}
	copyItem := *subscription
	r.subscriptions[subscription.UserID] = &copyItem
	r.updates++
	return nil
}

func (r *serviceSubscriptionRepo) FindByUserID(_ context.Context, userID string) (*entity.Subscription, error) {
	item, ok := r.subscriptions[userID]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *serviceSubscriptionRepo) FindByCustomerRef(_ context.Context, customerRef string) (*entity.Subscription, error) {
	for _, item := range r.subscriptions {
		if item.ExternalCustomerRef != nil && *item.ExternalCustomerRef == customerRef {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

type serviceLedgerRepo struct {
	claims map[string]bool
}

func newServiceLedgerRepo() *serviceLedgerRepo {
	return &serviceLedgerRepo{claims: map[string]bool{}}
}

func (r *serviceLedgerRepo) Claim(_ context.Context, event *entity.ProcessedEvent) error {
	key := event.Provider + ":" + event.ExternalEventID
	if r.claims[key] {
		return repository.ErrEventAlreadyProcessed
	}
	r.claims[key] = true
	return nil
}

func (r *serviceLedgerRepo) DeleteOlderThan(_ context.Context, _ time.Time, _ int32) (int64, error) {
	return 0, nil
}

type serviceNotificationRepo struct {
	notifications []*entity.Notification
}

func (r *serviceNotificationRepo) Create(_ context.Context, notification *entity.Notification) error {
	copyItem := *notification
	r.notifications = append(r.notifications, &copyItem)
	return nil
}

func (r *serviceNotificationRepo) Update(_ context.Context, notification *entity.Notification) error {
	for i, item := range r.notifications {
		if item.NotificationID == notification.NotificationID {
			copyItem := *notification
			r.notifications[i] = &copyItem
			return nil
		}
	}
	return errors.New("notification not found")
}

func (r *serviceNotificationRepo) ListDueDispatch(_ context.Context, now time.Time, limit int32) ([]*entity.Notification, error) {
	items := make([]*entity.Notification, 0)
	for _, item := range r.notifications {
		if item.DeliveryStatus == entity.NotificationDeliveryPending && item.DeliveryNextAt != nil && !item.DeliveryNextAt.After(now) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (r *serviceNotificationRepo) kinds() []string {
	kinds := make([]string, 0, len(r.notifications))
	for _, item := range r.notifications {
		kinds = append(kinds, item.Kind)
	}
	return kinds
}

type serviceDeliveryRepo struct {
	deliveries []*entity.WebhookDelivery
}

func (r *serviceDeliveryRepo) Create(_ context.Context, delivery *entity.WebhookDelivery) error {
	copyItem := *delivery
	r.deliveries = append(r.deliveries, &copyItem)
	return nil
}

type serviceTxManager struct{}

func (m *serviceTxManager) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeProvider struct {
	name  string
	event *provider.Event
	err   error
}

func (p *fakeProvider) Name() string {
	return p.name
}

func (p *fakeProvider) VerifyAndParse(context.Context, []byte, string) (*provider.Event, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.event, nil
}

type webhookRequest struct {
	provider  string
	signature string
	payload   []byte
}

func (r *webhookRequest) GetProvider() string  { return r.provider }
func (r *webhookRequest) GetSignature() string { return r.signature }
func (r *webhookRequest) GetPayload() []byte   { return r.payload }

type billingFixture struct {
	payments      *servicePaymentRepo
	subscriptions *serviceSubscriptionRepo
	ledger        *serviceLedgerRepo
	notifications *serviceNotificationRepo
	deliveries    *serviceDeliveryRepo
	svc           *BillingService
}

func newBillingFixture(p provider.Provider) *billingFixture {
	f := &billingFixture{
		payments:      newServicePaymentRepo(),
		subscriptions: newServiceSubscriptionRepo(),
		ledger:        newServiceLedgerRepo(),
		notifications: &serviceNotificationRepo{},
		deliveries:    &serviceDeliveryRepo{},
	}
	f.svc = NewBillingService(
		f.payments,
		f.subscriptions,
		f.ledger,
		f.notifications,
		f.deliveries,
		provider.NewRegistry(p),
		&serviceTxManager{},
		config.NotificationsConfig{
			ServiceURL:    "http://notifications.local/notify",
			MaxAttempts:   3,
			RetryInterval: time.Second,
			HTTPTimeout:   time.Second,
			JobBatchSize:  100,
		},
		config.LedgerConfig{Retention: time.Hour, JobBatchSize: 100},
	)
	return f
}

func settledEvent(eventID, paymentID string) *provider.Event {
	return &provider.Event{
		EventID:      eventID,
		EventType:    "payment.confirmed",
		Intent:       provider.IntentPaymentSettled,
		PaymentID:    paymentID,
		AmountCrypto: "0.015",
		Currency:     "BTC",
	}
}

func TestHandleProviderWebhookSettlesPendingPayment(t *testing.T) {
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: settledEvent("evt-1", "cp-1")})
	f.payments.payments[1] = &entity.Payment{
		ID:                1,
		ExternalPaymentID: "cp-1",
		Provider:          "chainpay",
		OwnerUserID:       "user-1",
		Type:              entity.PaymentTypeOneTime,
		Status:            entity.PaymentStatusPending,
		Currency:          "BTC",
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	payment := f.payments.payments[1]
	if payment.Status != entity.PaymentStatusConfirmed {
		t.Fatalf("expected confirmed status, got %d", payment.Status)
	}
	if payment.AmountCrypto == nil || *payment.AmountCrypto != "0.015" {
		t.Fatalf("expected amount_crypto recorded, got %v", payment.AmountCrypto)
	}
	if len(f.notifications.notifications) != 1 || f.notifications.notifications[0].Kind != entity.NotificationKindPaymentReceived {
		t.Fatalf("expected one payment_received notification, got %v", f.notifications.kinds())
	}
}

func TestHandleProviderWebhookDuplicateDeliveryIsNoOp(t *testing.T) {
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: settledEvent("evt-1", "cp-1")})
	f.payments.payments[1] = &entity.Payment{
		ID:                1,
		ExternalPaymentID: "cp-1",
		Provider:          "chainpay",
		OwnerUserID:       "user-1",
		Type:              entity.PaymentTypeOneTime,
		Status:            entity.PaymentStatusPending,
	}

	for i := 0; i < 3; i++ {
		if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")}); err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
	}

	if f.payments.updates != 1 {
		t.Fatalf("expected exactly one payment update, got %d", f.payments.updates)
	}
	if len(f.notifications.notifications) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(f.notifications.notifications))
	}
}

func TestHandleProviderWebhookSettledSubscriptionPaymentActivates(t *testing.T) {
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: settledEvent("evt-1", "cp-1")})
	f.payments.payments[1] = &entity.Payment{
		ID:                1,
		ExternalPaymentID: "cp-1",
		Provider:          "chainpay",
		OwnerUserID:       "user-1",
		Type:              entity.PaymentTypeSubscription,
		Status:            entity.PaymentStatusPending,
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	subscription := f.subscriptions.subscriptions["user-1"]
	if subscription == nil {
		t.Fatal("expected subscription row for user-1")
	}
	if subscription.Plan != entity.PlanPro || subscription.Status != entity.SubscriptionStatusActive {
		t.Fatalf("expected pro/active subscription, got plan=%s status=%d", subscription.Plan, subscription.Status)
	}
	if subscription.CurrentPeriodStart == nil || subscription.CurrentPeriodEnd == nil {
		t.Fatal("expected period fields set")
	}
	wantEnd := subscription.CurrentPeriodStart.Add(30 * 24 * time.Hour)
	if !subscription.CurrentPeriodEnd.Equal(wantEnd) {
		t.Fatalf("expected 30 day default period, got end=%v", subscription.CurrentPeriodEnd)
	}
}

func TestHandleProviderWebhookExpiredAfterConfirmedDoesNotDowngrade(t *testing.T) {
	event := &provider.Event{
		EventID:   "evt-2",
		EventType: "payment.expired",
		Intent:    provider.IntentPaymentExpired,
		PaymentID: "cp-1",
	}
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: event})
	f.payments.payments[1] = &entity.Payment{
		ID:                1,
		ExternalPaymentID: "cp-1",
		Provider:          "chainpay",
		OwnerUserID:       "user-1",
		Status:            entity.PaymentStatusConfirmed,
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	if f.payments.payments[1].Status != entity.PaymentStatusConfirmed {
		t.Fatalf("expected confirmed status preserved, got %d", f.payments.payments[1].Status)
	}
	if f.payments.updates != 0 {
		t.Fatalf("expected no payment update, got %d", f.payments.updates)
	}
	if len(f.notifications.notifications) != 0 {
		t.Fatalf("expected no notification, got %v", f.notifications.kinds())
	}
}

func TestHandleProviderWebhookExpiresPendingPayment(t *testing.T) {
	event := &provider.Event{
		EventID:   "evt-3",
		EventType: "payment.expired",
		Intent:    provider.IntentPaymentExpired,
		PaymentID: "cp-1",
	}
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: event})
	f.payments.payments[1] = &entity.Payment{
		ID:                1,
		ExternalPaymentID: "cp-1",
		Provider:          "chainpay",
		OwnerUserID:       "user-1",
		Status:            entity.PaymentStatusPending,
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	if f.payments.payments[1].Status != entity.PaymentStatusExpired {
		t.Fatalf("expected expired status, got %d", f.payments.payments[1].Status)
	}
	if len(f.notifications.notifications) != 1 || f.notifications.notifications[0].Kind != entity.NotificationKindPaymentExpired {
		t.Fatalf("expected one payment_expired notification, got %v", f.notifications.kinds())
	}
}

func TestHandleProviderWebhookForwardedBeforeConfirmed(t *testing.T) {
	event := &provider.Event{
		EventID:         "evt-4",
		EventType:       "payment.forwarded",
		Intent:          provider.IntentPaymentForwarded,
		PaymentID:       "cp-1",
		TxHash:          "0xabc",
		ForwardedTxHash: "0xdef",
	}
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: event})
	f.payments.payments[1] = &entity.Payment{
		ID:                1,
		ExternalPaymentID: "cp-1",
		Provider:          "chainpay",
		OwnerUserID:       "user-1",
		Status:            entity.PaymentStatusPending,
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	payment := f.payments.payments[1]
	if payment.Status != entity.PaymentStatusForwarded {
		t.Fatalf("expected forwarded status, got %d", payment.Status)
	}
	if payment.ForwardedTxHash == nil || *payment.ForwardedTxHash != "0xdef" {
		t.Fatalf("expected forwarded tx hash recorded, got %v", payment.ForwardedTxHash)
	}
}

func TestHandleProviderWebhookForwardedOnTerminalStatusIsNoOp(t *testing.T) {
	event := &provider.Event{
		EventID:         "evt-13",
		EventType:       "payment.forwarded",
		Intent:          provider.IntentPaymentForwarded,
		PaymentID:       "cp-1",
		ForwardedTxHash: "0xnew",
	}
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: event})
	forwardedHash := "0xdef"
	f.payments.payments[1] = &entity.Payment{
		ID:                1,
		ExternalPaymentID: "cp-1",
		Provider:          "chainpay",
		OwnerUserID:       "user-1",
		Status:            entity.PaymentStatusForwarded,
		ForwardedTxHash:   &forwardedHash,
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	payment := f.payments.payments[1]
	if f.payments.updates != 0 {
		t.Fatalf("expected no payment update on terminal status, got %d", f.payments.updates)
	}
	if payment.ForwardedTxHash == nil || *payment.ForwardedTxHash != "0xdef" {
		t.Fatalf("expected forwarded tx hash untouched, got %v", payment.ForwardedTxHash)
	}
}

func TestHandleProviderWebhookForwardedAfterExpiredIsConflict(t *testing.T) {
	event := &provider.Event{
		EventID:   "evt-14",
		EventType: "payment.forwarded",
		Intent:    provider.IntentPaymentForwarded,
		PaymentID: "cp-1",
	}
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: event})
	f.payments.payments[1] = &entity.Payment{
		ID:                1,
		ExternalPaymentID: "cp-1",
		Provider:          "chainpay",
		OwnerUserID:       "user-1",
		Status:            entity.PaymentStatusExpired,
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	if f.payments.payments[1].Status != entity.PaymentStatusExpired {
		t.Fatalf("expected expired status preserved, got %d", f.payments.payments[1].Status)
	}
	if f.payments.updates != 0 {
		t.Fatalf("expected no payment update, got %d", f.payments.updates)
	}
}

func TestHandleProviderWebhookOrphanPaymentIsAcknowledged(t *testing.T) {
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: settledEvent("evt-5", "cp-unknown")})

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")}); err != nil {
		t.Fatalf("expected orphan delivery acknowledged, got %v", err)
	}

	if len(f.payments.payments) != 0 {
		t.Fatal("expected no payment row created")
	}
	if len(f.notifications.notifications) != 0 {
		t.Fatal("expected no notification for orphan delivery")
	}
	// The claim stays committed so a redelivery of the same orphan is
	// a duplicate, not a second warn.
	if !f.ledger.claims["chainpay:evt-5"] {
		t.Fatal("expected event claimed in ledger")
	}
}

func TestHandleProviderWebhookUnrecognizedEventIsAcknowledged(t *testing.T) {
	event := &provider.Event{
		EventID:   "evt-6",
		EventType: "payment.created",
		Intent:    provider.IntentUnrecognized,
	}
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: event})

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")}); err != nil {
		t.Fatalf("expected unrecognized event acknowledged, got %v", err)
	}

	if len(f.ledger.claims) != 0 {
		t.Fatal("expected no ledger claim for unrecognized event")
	}
	if len(f.deliveries.deliveries) != 1 {
		t.Fatalf("expected one audit row, got %d", len(f.deliveries.deliveries))
	}
}

func TestHandleProviderWebhookUnsupportedProvider(t *testing.T) {
	f := newBillingFixture(&fakeProvider{name: "chainpay", event: settledEvent("evt-1", "cp-1")})

	err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "paypal", payload: []byte("{}")})
	if !errors.Is(err, ErrProviderUnsupported) {
		t.Fatalf("expected ErrProviderUnsupported, got %v", err)
	}
}

func TestHandleProviderWebhookRejectedSignatureIsAudited(t *testing.T) {
	f := newBillingFixture(&fakeProvider{name: "chainpay", err: provider.ErrSignatureInvalid})

	err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", signature: "t=1,v1=bad", payload: []byte("{}")})
	if !errors.Is(err, ErrSignatureRejected) {
		t.Fatalf("expected ErrSignatureRejected, got %v", err)
	}

	if len(f.deliveries.deliveries) != 1 {
		t.Fatalf("expected one audit row, got %d", len(f.deliveries.deliveries))
	}
	delivery := f.deliveries.deliveries[0]
	if delivery.Status != entity.WebhookDeliveryRejected {
		t.Fatalf("expected rejected audit status, got %d", delivery.Status)
	}
	if delivery.Signature != "t=1,v1=bad" {
		t.Fatalf("expected raw signature header retained, got %q", delivery.Signature)
	}
}

func TestHandleProviderWebhookMissingSecretFailsLoud(t *testing.T) {
	f := newBillingFixture(&fakeProvider{name: "chainpay", err: provider.ErrNotConfigured})

	err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "chainpay", payload: []byte("{}")})
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestHandleProviderWebhookRenewalOverwritesPeriodVerbatim(t *testing.T) {
	periodStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	event := &provider.Event{
		EventID:            "evt-7",
		EventType:          "customer.subscription.updated",
		Intent:             provider.IntentSubscriptionRenewed,
		CustomerRef:        "cus_123",
		SubscriptionRef:    "sub_123",
		SubscriptionStatus: entity.SubscriptionStatusActive,
		PeriodStart:        &periodStart,
		PeriodEnd:          &periodEnd,
		CancelAtPeriodEnd:  true,
	}
	f := newBillingFixture(&fakeProvider{name: "stripe", event: event})
	customerRef := "cus_123"
	oldEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	f.subscriptions.subscriptions["user-1"] = &entity.Subscription{
		UserID:              "user-1",
		Plan:                entity.PlanPro,
		Status:              entity.SubscriptionStatusPastDue,
		CurrentPeriodEnd:    &oldEnd,
		ExternalCustomerRef: &customerRef,
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "stripe", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	subscription := f.subscriptions.subscriptions["user-1"]
	if subscription.Status != entity.SubscriptionStatusActive {
		t.Fatalf("expected active status, got %d", subscription.Status)
	}
	if !subscription.CurrentPeriodEnd.Equal(periodEnd) {
		t.Fatalf("expected period end overwritten, got %v", subscription.CurrentPeriodEnd)
	}
	if !subscription.CancelAtPeriodEnd {
		t.Fatal("expected cancel_at_period_end mirrored from processor")
	}
	if len(f.notifications.notifications) != 1 || f.notifications.notifications[0].Kind != entity.NotificationKindSubscriptionRenewed {
		t.Fatalf("expected one subscription_renewed notification, got %v", f.notifications.kinds())
	}
}

func TestHandleProviderWebhookRenewalWithCanceledStatusTakesCancelPath(t *testing.T) {
	periodStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	event := &provider.Event{
		EventID:            "evt-12",
		EventType:          "customer.subscription.updated",
		Intent:             provider.IntentSubscriptionRenewed,
		CustomerRef:        "cus_123",
		SubscriptionRef:    "sub_123",
		SubscriptionStatus: entity.SubscriptionStatusCanceled,
		PeriodStart:        &periodStart,
		PeriodEnd:          &periodEnd,
	}
	f := newBillingFixture(&fakeProvider{name: "stripe", event: event})
	customerRef := "cus_123"
	subscriptionRef := "sub_123"
	oldEnd := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	f.subscriptions.subscriptions["user-1"] = &entity.Subscription{
		UserID:                  "user-1",
		Plan:                    entity.PlanPro,
		Status:                  entity.SubscriptionStatusActive,
		CurrentPeriodEnd:        &oldEnd,
		ExternalCustomerRef:     &customerRef,
		ExternalSubscriptionRef: &subscriptionRef,
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "stripe", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	subscription := f.subscriptions.subscriptions["user-1"]
	if subscription.Plan != entity.PlanFree || subscription.Status != entity.SubscriptionStatusCanceled {
		t.Fatalf("expected free/canceled, got plan=%s status=%d", subscription.Plan, subscription.Status)
	}
	if subscription.CurrentPeriodStart != nil || subscription.CurrentPeriodEnd != nil {
		t.Fatal("expected period fields cleared")
	}
	if subscription.ExternalSubscriptionRef != nil {
		t.Fatal("expected subscription ref cleared")
	}
	if len(f.notifications.notifications) != 1 || f.notifications.notifications[0].Kind != entity.NotificationKindSubscriptionCanceled {
		t.Fatalf("expected one subscription_canceled notification, got %v", f.notifications.kinds())
	}
}

func TestHandleProviderWebhookCancellationRevertsToFree(t *testing.T) {
	event := &provider.Event{
		EventID:     "evt-8",
		EventType:   "customer.subscription.deleted",
		Intent:      provider.IntentSubscriptionCanceled,
		CustomerRef: "cus_123",
	}
	f := newBillingFixture(&fakeProvider{name: "stripe", event: event})
	customerRef := "cus_123"
	subscriptionRef := "sub_123"
	periodEnd := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.subscriptions.subscriptions["user-1"] = &entity.Subscription{
		UserID:                  "user-1",
		Plan:                    entity.PlanPro,
		Status:                  entity.SubscriptionStatusActive,
		CurrentPeriodEnd:        &periodEnd,
		ExternalCustomerRef:     &customerRef,
		ExternalSubscriptionRef: &subscriptionRef,
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "stripe", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	subscription := f.subscriptions.subscriptions["user-1"]
	if subscription.Plan != entity.PlanFree || subscription.Status != entity.SubscriptionStatusCanceled {
		t.Fatalf("expected free/canceled, got plan=%s status=%d", subscription.Plan, subscription.Status)
	}
	if subscription.CurrentPeriodStart != nil || subscription.CurrentPeriodEnd != nil {
		t.Fatal("expected period fields cleared")
	}
	if subscription.ExternalSubscriptionRef != nil {
		t.Fatal("expected subscription ref cleared")
	}
	if subscription.ExternalCustomerRef == nil {
		t.Fatal("expected customer ref preserved for row history")
	}
}

func TestHandleProviderWebhookPastDueKeepsPlan(t *testing.T) {
	event := &provider.Event{
		EventID:     "evt-9",
		EventType:   "invoice.payment_failed",
		Intent:      provider.IntentSubscriptionPastDue,
		CustomerRef: "cus_123",
		InvoiceID:   "in_123",
	}
	f := newBillingFixture(&fakeProvider{name: "stripe", event: event})
	customerRef := "cus_123"
	f.subscriptions.subscriptions["user-1"] = &entity.Subscription{
		UserID:              "user-1",
		Plan:                entity.PlanPro,
		Status:              entity.SubscriptionStatusActive,
		ExternalCustomerRef: &customerRef,
	}

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "stripe", payload: []byte("{}")}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	subscription := f.subscriptions.subscriptions["user-1"]
	if subscription.Plan != entity.PlanPro {
		t.Fatalf("expected plan retained, got %s", subscription.Plan)
	}
	if subscription.Status != entity.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due status, got %d", subscription.Status)
	}
}

func TestHandleProviderWebhookUnknownCustomerRefIsAcknowledged(t *testing.T) {
	event := &provider.Event{
		EventID:     "evt-10",
		EventType:   "invoice.payment_succeeded",
		Intent:      provider.IntentSubscriptionRenewed,
		CustomerRef: "cus_unknown",
	}
	f := newBillingFixture(&fakeProvider{name: "stripe", event: event})

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "stripe", payload: []byte("{}")}); err != nil {
		t.Fatalf("expected orphan renewal acknowledged, got %v", err)
	}

	if len(f.subscriptions.subscriptions) != 0 {
		t.Fatal("expected no subscription row created from partial data")
	}
	if len(f.notifications.notifications) != 0 {
		t.Fatal("expected no notification for orphan renewal")
	}
}

func TestHandleProviderWebhookActivationWithoutUserIDIsAcknowledged(t *testing.T) {
	event := &provider.Event{
		EventID:   "evt-11",
		EventType: "checkout.session.completed",
		Intent:    provider.IntentSubscriptionActivated,
	}
	f := newBillingFixture(&fakeProvider{name: "stripe", event: event})

	if err := f.svc.HandleProviderWebhook(context.Background(), &webhookRequest{provider: "stripe", payload: []byte("{}")}); err != nil {
		t.Fatalf("expected activation without user acknowledged, got %v", err)
	}

	if len(f.subscriptions.subscriptions) != 0 {
		t.Fatal("expected no subscription row created")
	}
}

func TestGetSubscriptionNotFound(t *testing.T) {
	f := newBillingFixture(&fakeProvider{name: "chainpay"})

	_, err := f.svc.GetSubscription(context.Background(), "missing-user")
	if !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}
