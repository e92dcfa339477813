// internal/gateway/mock.go
package gateway

import (
	"context"
	"fmt"
	"sync"
)

type mockCharge struct {
	amount float64
	status ChargeStatus
}

// Mock is an in-memory Gateway for tests and local development. Charges
// initiated through it stay pending until CompleteCharge or FailCharge is
// called, mirroring the asynchronous confirmation of a real processor.
type Mock struct {
	mu       sync.Mutex
	charges  map[string]*mockCharge
	refunds  int
	payouts  int
	FailNext error // when set, the next mutating call returns this error once
}

func NewMock() *Mock {
	return &Mock{charges: make(map[string]*mockCharge)}
}

func (m *Mock) InitiateCharge(ctx context.Context, email string, amount float64, reference string) (*ChargeResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	m.charges[reference] = &mockCharge{amount: amount, status: ChargeStatusPending}
	return &ChargeResponse{
		Reference:   reference,
		RedirectURL: "https://pay.example.test/" + reference,
	}, nil
}

func (m *Mock) VerifyCharge(ctx context.Context, reference string) (*VerifyResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.charges[reference]
	if !ok {
		return nil, fmt.Errorf("%w: unknown charge %s", ErrGateway, reference)
	}
	return &VerifyResponse{Status: c.status, AmountPaid: c.amount}, nil
}

func (m *Mock) TransferPayout(ctx context.Context, recipient string, amount float64, note string) (*TransferResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if recipient == "" {
		return nil, ErrInvalidRecipient
	}
	m.payouts++
	return &TransferResponse{TransferID: fmt.Sprintf("trf_%d", m.payouts)}, nil
}

func (m *Mock) ProcessRefund(ctx context.Context, reference string, amount float64) (*RefundResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	m.refunds++
	return &RefundResponse{RefundID: fmt.Sprintf("rfd_%d", m.refunds)}, nil
}

// VerifyWebhook treats the payload as the platform reference and reports
// the recorded charge's state, so tests can drive both webhook outcomes.
func (m *Mock) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if signature != "mock-signature" {
		return nil, ErrInvalidSignature
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	reference := string(payload)
	event := &WebhookEvent{Type: WebhookEventChargeSucceeded, Reference: reference}
	if c, ok := m.charges[reference]; ok {
		event.AmountPaid = c.amount
		if c.status == ChargeStatusFailed {
			event.Type = WebhookEventChargeFailed
			event.AmountPaid = 0
		}
	}
	return event, nil
}

// CompleteCharge marks a charge paid. amountPaid lets tests simulate a
// gateway-reported amount that differs from what was initiated.
func (m *Mock) CompleteCharge(reference string, amountPaid float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.charges[reference]; ok {
		c.status = ChargeStatusPaid
		c.amount = amountPaid
	}
}

func (m *Mock) FailCharge(reference string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.charges[reference]; ok {
		c.status = ChargeStatusFailed
	}
}

// RefundCount reports how many refunds were issued.
func (m *Mock) RefundCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refunds
}

// PayoutCount reports how many transfers were issued.
func (m *Mock) PayoutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payouts
}

func (m *Mock) takeFailure() error {
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	return nil
}
