package service

import "errors"

var (
	ErrProviderUnsupported   = errors.New("provider is not supported")
	ErrProviderNotConfigured = errors.New("provider is not configured")
	ErrSignatureRejected     = errors.New("webhook signature rejected")
	ErrCallbackRejected      = errors.New("callback rejected")
	ErrMalformedPayload      = errors.New("malformed payload")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
)
