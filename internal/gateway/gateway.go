// internal/gateway/gateway.go
package gateway

import (
	"context"
	"errors"
)

// Sentinel errors surfaced by gateway implementations. Callers never retry
// a mutating call on ErrGateway; reconciliation happens through the
// idempotent verify/webhook paths instead.
var (
	ErrGateway                    = errors.New("payment gateway error")
	ErrInsufficientGatewayBalance = errors.New("insufficient gateway balance")
	ErrInvalidRecipient           = errors.New("invalid payout recipient")
	ErrInvalidSignature           = errors.New("invalid webhook signature")
)

// ChargeStatus is the gateway's view of a charge.
type ChargeStatus string

const (
	ChargeStatusPending ChargeStatus = "pending"
	ChargeStatusPaid    ChargeStatus = "paid"
	ChargeStatusFailed  ChargeStatus = "failed"
)

type ChargeResponse struct {
	// Reference is the gateway-side handle for the charge. It is stored on
	// the transaction and passed back to VerifyCharge and ProcessRefund.
	Reference   string
	RedirectURL string
}

type VerifyResponse struct {
	Status     ChargeStatus
	AmountPaid float64
}

type TransferResponse struct {
	TransferID string
}

type RefundResponse struct {
	RefundID string
}

// WebhookEventType classifies gateway events the settlement core reacts to.
type WebhookEventType string

const (
	WebhookEventChargeSucceeded WebhookEventType = "charge.succeeded"
	WebhookEventChargeFailed    WebhookEventType = "charge.failed"
)

// WebhookEvent is a signature-verified gateway event. Reference is the
// platform reference the charge was initiated with.
type WebhookEvent struct {
	Type       WebhookEventType
	Reference  string
	AmountPaid float64
}

// Gateway is the payment processor boundary. All calls are synchronous,
// fallible network calls; implementations honor the context deadline and
// never retry mutating operations on their own.
type Gateway interface {
	InitiateCharge(ctx context.Context, email string, amount float64, reference string) (*ChargeResponse, error)
	VerifyCharge(ctx context.Context, reference string) (*VerifyResponse, error)
	TransferPayout(ctx context.Context, recipient string, amount float64, note string) (*TransferResponse, error)
	ProcessRefund(ctx context.Context, reference string, amount float64) (*RefundResponse, error)
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
