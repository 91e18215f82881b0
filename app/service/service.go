package service

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
	"github.com/vibast-solutions/ms-go-billing/config"
)

const (
	defaultListLimit = int32(100)
	defaultBatchSize = int32(100)
)

type paymentRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Payment, error)
	FindByExternalID(ctx context.Context, provider, externalPaymentID string) (*entity.Payment, error)
	Update(ctx context.Context, payment *entity.Payment) error
	List(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error)
}

type subscriptionRepository interface {
	Upsert(ctx context.Context, subscription *entity.Subscription) error
	Update(ctx context.Context, subscription *entity.Subscription) error
	FindByUserID(ctx context.Context, userID string) (*entity.Subscription, error)
	FindByCustomerRef(ctx context.Context, customerRef string) (*entity.Subscription, error)
}

type processedEventRepository interface {
	Claim(ctx context.Context, event *entity.ProcessedEvent) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int32) (int64, error)
}

type notificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
	Update(ctx context.Context, notification *entity.Notification) error
	ListDueDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Notification, error)
}

type webhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *entity.WebhookDelivery) error
}

type txManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type BillingService struct {
	paymentRepo      paymentRepository
	subscriptionRepo subscriptionRepository
	ledgerRepo       processedEventRepository
	notificationRepo notificationRepository
	deliveryRepo     webhookDeliveryRepository
	providerReg      *provider.Registry
	tx               txManager
	notificationsCfg config.NotificationsConfig
	ledgerCfg        config.LedgerConfig
	dispatchHTTP     *http.Client
	logger           logrus.FieldLogger
}

func NewBillingService(
	paymentRepo paymentRepository,
	subscriptionRepo subscriptionRepository,
	ledgerRepo processedEventRepository,
	notificationRepo notificationRepository,
	deliveryRepo webhookDeliveryRepository,
	providerReg *provider.Registry,
	tx txManager,
	notificationsCfg config.NotificationsConfig,
	ledgerCfg config.LedgerConfig,
) *BillingService {
	timeout := notificationsCfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &BillingService{
		paymentRepo:      paymentRepo,
		subscriptionRepo: subscriptionRepo,
		ledgerRepo:       ledgerRepo,
		notificationRepo: notificationRepo,
		deliveryRepo:     deliveryRepo,
		providerReg:      providerReg,
		tx:               tx,
		notificationsCfg: notificationsCfg,
		ledgerCfg:        ledgerCfg,
		dispatchHTTP:     &http.Client{Timeout: timeout},
		logger:           factory.NewModuleLogger("billing-service"),
	}
}

func (s *BillingService) GetPayment(ctx context.Context, id uint64) (*entity.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

func (s *BillingService) ListPayments(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	return s.paymentRepo.List(ctx, filter)
}

func (s *BillingService) GetSubscription(ctx context.Context, userID string) (*entity.Subscription, error) {
	subscription, err := s.subscriptionRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *BillingService) notificationsBatchSize() int32 {
	if s.notificationsCfg.JobBatchSize > 0 {
		return s.notificationsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func (s *BillingService) ledgerBatchSize() int32 {
	if s.ledgerCfg.JobBatchSize > 0 {
		return s.ledgerCfg.JobBatchSize
	}
	return defaultBatchSize
}
