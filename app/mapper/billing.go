package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

func PaymentToResponse(item *entity.Payment) *types.PaymentResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentResponse{
		ID:                item.ID,
		ExternalPaymentID: item.ExternalPaymentID,
		Provider:          item.Provider,
		OwnerUserID:       item.OwnerUserID,
		Type:              item.Type,
		Status:            PaymentStatusName(item.Status),
		AmountCrypto:      item.AmountCrypto,
		AmountFiatCents:   item.AmountFiatCents,
		Currency:          item.Currency,
		TxHash:            item.TxHash,
		ForwardedTxHash:   item.ForwardedTxHash,
		Metadata:          cloneMetadata(item.Metadata),
		CreatedAt:         item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentsToResponse(items []*entity.Payment) []*types.PaymentResponse {
	result := make([]*types.PaymentResponse, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

func SubscriptionToResponse(item *entity.Subscription) *types.SubscriptionResponse {
	if item == nil {
		return nil
	}

	return &types.SubscriptionResponse{
		UserID:                  item.UserID,
		Plan:                    item.Plan,
		Status:                  SubscriptionStatusName(item.Status),
		CurrentPeriodStart:      formatTimePtr(item.CurrentPeriodStart),
		CurrentPeriodEnd:        formatTimePtr(item.CurrentPeriodEnd),
		CancelAtPeriodEnd:       item.CancelAtPeriodEnd,
		ExternalCustomerRef:     item.ExternalCustomerRef,
		ExternalSubscriptionRef: item.ExternalSubscriptionRef,
		UpdatedAt:               item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentStatusName(status int32) string {
	switch status {
	case entity.PaymentStatusPending:
		return "pending"
	case entity.PaymentStatusConfirmed:
		return "confirmed"
	case entity.PaymentStatusForwarded:
		return "forwarded"
	case entity.PaymentStatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

func SubscriptionStatusName(status int32) string {
	switch status {
	case entity.SubscriptionStatusActive:
		return "active"
	case entity.SubscriptionStatusTrialing:
		return "trialing"
	case entity.SubscriptionStatusPastDue:
		return "past_due"
	case entity.SubscriptionStatusCanceled:
		return "canceled"
	case entity.SubscriptionStatusIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

func formatTimePtr(v *time.Time) *string {
	if v == nil {
		return nil
	}
	formatted := v.UTC().Format(time.RFC3339)
	return &formatted
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
