package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

// ProviderWebhookRequest carries one raw processor callback. Signature
// presence is not validated here so an unsigned request still reaches
// the verifier and fails with an authentication error, not a 400.
type ProviderWebhookRequest struct {
	Provider  string
	Signature string
	Payload   []byte
}

func NewProviderWebhookRequestFromContext(ctx echo.Context) (*ProviderWebhookRequest, error) {
	providerName := strings.TrimSpace(strings.ToLower(ctx.Param("provider")))

	signature := strings.TrimSpace(ctx.Request().Header.Get("Stripe-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get("X-Signature"))
	}

	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &ProviderWebhookRequest{
		Provider:  providerName,
		Signature: signature,
		Payload:   payload,
	}, nil
}

func (r *ProviderWebhookRequest) GetProvider() string {
	if r == nil {
		return ""
	}
	return r.Provider
}

func (r *ProviderWebhookRequest) GetSignature() string {
	if r == nil {
		return ""
	}
	return r.Signature
}

func (r *ProviderWebhookRequest) GetPayload() []byte {
	if r == nil {
		return nil
	}
	return r.Payload
}

func (r *ProviderWebhookRequest) Validate() error {
	if strings.TrimSpace(r.GetProvider()) == "" {
		return errors.New("provider is required")
	}
	if len(r.GetPayload()) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

type GetPaymentRequest struct {
	ID uint64
}

func NewGetPaymentRequestFromContext(ctx echo.Context) (*GetPaymentRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetPaymentRequest{ID: id}, nil
}

func (r *GetPaymentRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid payment id")
	}
	return nil
}

type ListPaymentsRequest struct {
	OwnerUserID string
	Provider    string
	Type        string
	HasStatus   bool
	Status      int32
	Limit       int32
	Offset      int32
}

func NewListPaymentsRequestFromContext(ctx echo.Context) (*ListPaymentsRequest, error) {
	req := &ListPaymentsRequest{
		OwnerUserID: strings.TrimSpace(ctx.QueryParam("user_id")),
		Provider:    strings.TrimSpace(strings.ToLower(ctx.QueryParam("provider"))),
		Type:        strings.TrimSpace(strings.ToLower(ctx.QueryParam("type"))),
		Limit:       100,
		Offset:      0,
	}

	if statusRaw := strings.TrimSpace(ctx.QueryParam("status")); statusRaw != "" {
		status, err := strconv.ParseInt(statusRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.HasStatus = true
		req.Status = int32(status)
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListPaymentsRequest) Validate() error {
	if r.Limit <= 0 || r.Limit > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	if r.HasStatus && !isValidPaymentStatus(r.Status) {
		return errors.New("invalid status")
	}
	if r.Type != "" && r.Type != entity.PaymentTypeOneTime && r.Type != entity.PaymentTypeSubscription {
		return errors.New("type must be one_time or subscription")
	}
	return nil
}

type GetSubscriptionRequest struct {
	UserID string
}

func NewGetSubscriptionRequestFromContext(ctx echo.Context) (*GetSubscriptionRequest, error) {
	return &GetSubscriptionRequest{UserID: strings.TrimSpace(ctx.Param("user_id"))}, nil
}

func (r *GetSubscriptionRequest) Validate() error {
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

type ReceivedResponse struct {
	Received bool `json:"received"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type PaymentResponse struct {
	ID                uint64            `json:"id"`
	ExternalPaymentID string            `json:"external_payment_id"`
	Provider          string            `json:"provider"`
	OwnerUserID       string            `json:"owner_user_id"`
	Type              string            `json:"type"`
	Status            string            `json:"status"`
	AmountCrypto      *string           `json:"amount_crypto,omitempty"`
	AmountFiatCents   int64             `json:"amount_fiat_cents"`
	Currency          string            `json:"currency"`
	TxHash            *string           `json:"tx_hash,omitempty"`
	ForwardedTxHash   *string           `json:"forwarded_tx_hash,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
}

type ListPaymentsResponse struct {
	Payments []*PaymentResponse `json:"payments"`
}

type SubscriptionResponse struct {
	UserID                  string  `json:"user_id"`
	Plan                    string  `json:"plan"`
	Status                  string  `json:"status"`
	CurrentPeriodStart      *string `json:"current_period_start,omitempty"`
	CurrentPeriodEnd        *string `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd       bool    `json:"cancel_at_period_end"`
	ExternalCustomerRef     *string `json:"external_customer_ref,omitempty"`
	ExternalSubscriptionRef *string `json:"external_subscription_ref,omitempty"`
	UpdatedAt               string  `json:"updated_at"`
}

func isValidPaymentStatus(status int32) bool {
	switch status {
	case entity.PaymentStatusPending,
		entity.PaymentStatusConfirmed,
		entity.PaymentStatusForwarded,
		entity.PaymentStatusExpired:
		return true
	default:
		return false
	}
}
