package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/mapper"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

type BillingController struct {
	billingService *service.BillingService
	logger         logrus.FieldLogger
}

func NewBillingController(billingService *service.BillingService) *BillingController {
	return &BillingController{
		billingService: billingService,
		logger:         factory.NewModuleLogger("billing-controller"),
	}
}

func (c *BillingController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

// HandleProviderWebhook terminates processor callbacks. Anything the
// processor should retry maps to 4xx/5xx; everything we have either
// applied or deliberately discarded acks with 200 so the processor
// stops resending it.
func (c *BillingController) HandleProviderWebhook(ctx echo.Context) error {
	req, err := types.NewProviderWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	if err := c.billingService.HandleProviderWebhook(ctx.Request().Context(), req); err != nil {
		switch {
		case errors.Is(err, service.ErrSignatureRejected):
			return c.writeError(ctx, http.StatusUnauthorized, "signature verification failed")
		case errors.Is(err, service.ErrProviderUnsupported),
			errors.Is(err, service.ErrCallbackRejected),
			errors.Is(err, service.ErrMalformedPayload):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrProviderNotConfigured):
			c.logger.WithError(err).Error("Webhook handling failed")
			return c.writeError(ctx, http.StatusInternalServerError, "provider is not configured")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Webhook handling failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.ReceivedResponse{Received: true})
}

func (c *BillingController) GetPayment(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.billingService.GetPayment(ctx.Request().Context(), req.ID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "payment not found")
		}
		c.logger.WithError(err).Error("Get payment failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentToResponse(item))
}

func (c *BillingController) ListPayments(ctx echo.Context) error {
	req, err := types.NewListPaymentsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.billingService.ListPayments(ctx.Request().Context(), repository.PaymentFilter{
		OwnerUserID: req.OwnerUserID,
		Provider:    req.Provider,
		Type:        req.Type,
		HasStatus:   req.HasStatus,
		Status:      req.Status,
		Limit:       req.Limit,
		Offset:      req.Offset,
	})
	if err != nil {
		c.logger.WithError(err).Error("List payments failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentsResponse{Payments: mapper.PaymentsToResponse(items)})
}

func (c *BillingController) GetSubscription(ctx echo.Context) error {
	req, err := types.NewGetSubscriptionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.billingService.GetSubscription(ctx.Request().Context(), req.UserID)
	if err != nil {
		if errors.Is(err, service.ErrSubscriptionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "subscription not found")
		}
		c.logger.WithError(err).Error("Get subscription failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.SubscriptionToResponse(item))
}

func (c *BillingController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
