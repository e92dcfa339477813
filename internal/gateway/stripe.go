// internal/gateway/stripe.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/refund"
	"github.com/stripe/stripe-go/v74/transfer"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/thriftbay/marketplace-backend/internal/config"
)

// StripeGateway implements Gateway on Stripe Checkout. Charges are hosted
// checkout sessions so buyers get a redirect URL; the session id is the
// gateway reference used by verify and refund.
type StripeGateway struct {
	currency      string
	successURL    string
	cancelURL     string
	webhookSecret string
}

func NewStripeGateway(cfg *config.Config) *StripeGateway {
	// Initialize Stripe
	stripe.Key = cfg.Payment.StripeSecretKey

	return &StripeGateway{
		currency:      cfg.Payment.Currency,
		successURL:    cfg.Frontend.BaseURL + "/payments/complete?reference={CHECKOUT_SESSION_ID}",
		cancelURL:     cfg.Frontend.BaseURL + "/payments/cancelled",
		webhookSecret: cfg.Payment.StripeWebhookSecret,
	}
}

func (g *StripeGateway) InitiateCharge(ctx context.Context, email string, amount float64, reference string) (*ChargeResponse, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(email),
		ClientReferenceID: stripe.String(reference),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(g.currency),
					UnitAmount: stripe.Int64(toMinorUnits(amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + reference),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("reference", reference)

	s, err := session.New(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &ChargeResponse{
		Reference:   s.ID,
		RedirectURL: s.URL,
	}, nil
}

func (g *StripeGateway) VerifyCharge(ctx context.Context, reference string) (*VerifyResponse, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := session.Get(reference, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	resp := &VerifyResponse{AmountPaid: fromMinorUnits(s.AmountTotal)}
	switch s.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid:
		resp.Status = ChargeStatusPaid
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		if s.Status == stripe.CheckoutSessionStatusExpired {
			resp.Status = ChargeStatusFailed
		} else {
			resp.Status = ChargeStatusPending
		}
	default:
		resp.Status = ChargeStatusPending
	}
	return resp, nil
}

func (g *StripeGateway) TransferPayout(ctx context.Context, recipient string, amount float64, note string) (*TransferResponse, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(toMinorUnits(amount)),
		Currency:    stripe.String(g.currency),
		Destination: stripe.String(recipient),
		Description: stripe.String(note),
	}
	params.Context = ctx

	t, err := transfer.New(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &TransferResponse{TransferID: t.ID}, nil
}

func (g *StripeGateway) ProcessRefund(ctx context.Context, reference string, amount float64) (*RefundResponse, error) {
	// The session carries the payment intent the refund is issued against.
	sessionParams := &stripe.CheckoutSessionParams{}
	sessionParams.Context = ctx

	s, err := session.Get(reference, sessionParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	if s.PaymentIntent == nil {
		return nil, fmt.Errorf("%w: session %s has no payment intent", ErrGateway, reference)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(s.PaymentIntent.ID),
		Amount:        stripe.Int64(toMinorUnits(amount)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &RefundResponse{RefundID: r.ID}, nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var s stripe.CheckoutSession
		if err := unmarshalEventObject(&event, &s); err != nil {
			return nil, err
		}
		return &WebhookEvent{
			Type:       WebhookEventChargeSucceeded,
			Reference:  s.ClientReferenceID,
			AmountPaid: fromMinorUnits(s.AmountTotal),
		}, nil
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		var s stripe.CheckoutSession
		if err := unmarshalEventObject(&event, &s); err != nil {
			return nil, err
		}
		return &WebhookEvent{
			Type:      WebhookEventChargeFailed,
			Reference: s.ClientReferenceID,
		}, nil
	default:
		// Pass unrecognized events through; the caller acknowledges and
		// drops them so the gateway stops redelivering.
		return &WebhookEvent{Type: WebhookEventType(event.Type)}, nil
	}
}

func unmarshalEventObject(event *stripe.Event, dest interface{}) error {
	if err := json.Unmarshal(event.Data.Raw, dest); err != nil {
		return fmt.Errorf("%w: malformed event payload: %v", ErrGateway, err)
	}
	return nil
}

func wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case stripe.ErrorCodeBalanceInsufficient:
			return fmt.Errorf("%w: %s", ErrInsufficientGatewayBalance, stripeErr.Msg)
		case stripe.ErrorCodeAccountInvalid, stripe.ErrorCodeBankAccountUnusable:
			return fmt.Errorf("%w: %s", ErrInvalidRecipient, stripeErr.Msg)
		}
	}
	return fmt.Errorf("%w: %v", ErrGateway, err)
}

// toMinorUnits converts a whole-currency amount to cents. Rounding matters:
// plain truncation turns amounts like 0.29 into 28 because of float
// representation, and an undercharged session can never pass the
// exact-amount check on verification.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
