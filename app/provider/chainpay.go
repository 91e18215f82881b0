package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const ChainpayProviderName = "chainpay"

// chainpaySignatureTolerance is the replay window in seconds, enforced
// in both directions. This is a fixed design choice, not a tunable.
const chainpaySignatureTolerance int64 = 300

type ChainpayConfig struct {
	WebhookSecret string
}

type ChainpayProvider struct {
	cfg ChainpayConfig
	now func() time.Time
}

func NewChainpayProvider(cfg ChainpayConfig) *ChainpayProvider {
	return &ChainpayProvider{
		cfg: cfg,
		now: time.Now,
	}
}

func (p *ChainpayProvider) Name() string {
	return ChainpayProviderName
}

type chainpayEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		PaymentID       string      `json:"payment_id"`
		Status          string      `json:"status"`
		AmountCrypto    json.Number `json:"amount_crypto"`
		AmountUSD       json.Number `json:"amount_usd"`
		Currency        string      `json:"currency"`
		TxHash          string      `json:"tx_hash"`
		ForwardedTxHash string      `json:"forwarded_tx_hash"`
	} `json:"data"`
	CreatedAt  int64  `json:"created_at"`
	BusinessID string `json:"business_id"`
}

func (p *ChainpayProvider) VerifyAndParse(_ context.Context, payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, ErrNotConfigured
	}
	if !verifyChainpaySignature(payload, signature, p.cfg.WebhookSecret, p.now().Unix()) {
		return nil, ErrSignatureInvalid
	}

	var envelope chainpayEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return nil, fmt.Errorf("%w: event id is missing", ErrMalformedPayload)
	}

	event := &Event{
		EventID:         strings.TrimSpace(envelope.ID),
		EventType:       envelope.Type,
		PaymentID:       strings.TrimSpace(envelope.Data.PaymentID),
		AmountCrypto:    envelope.Data.AmountCrypto.String(),
		AmountFiatCents: usdToCents(envelope.Data.AmountUSD),
		Currency:        strings.ToUpper(strings.TrimSpace(envelope.Data.Currency)),
		TxHash:          strings.TrimSpace(envelope.Data.TxHash),
		ForwardedTxHash: strings.TrimSpace(envelope.Data.ForwardedTxHash),
	}

	switch envelope.Type {
	case "payment.confirmed":
		event.Intent = IntentPaymentSettled
	case "payment.forwarded":
		event.Intent = IntentPaymentForwarded
	case "payment.expired":
		event.Intent = IntentPaymentExpired
	default:
		event.Intent = IntentUnrecognized
		return event, nil
	}

	if event.PaymentID == "" {
		return nil, fmt.Errorf("%w: payment_id is missing", ErrMalformedPayload)
	}

	return event, nil
}

// verifyChainpaySignature checks a header of the form
// "t=<unix_seconds>,v1=<hex hmac-sha256>". It fails closed on any
// missing or malformed field, rejects timestamps more than the
// tolerance away from now in either direction, and compares digests in
// constant time; a hex-decode failure or length mismatch is not-equal
// without comparing content.
func verifyChainpaySignature(payload []byte, signatureHeader, webhookSecret string, nowUnix int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if nowUnix-tsUnix > chainpaySignatureTolerance || tsUnix-nowUnix > chainpaySignatureTolerance {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}

func usdToCents(amount json.Number) int64 {
	if amount.String() == "" {
		return 0
	}
	value, err := amount.Float64()
	if err != nil {
		return 0
	}
	return int64(math.Round(value * 100))
}
