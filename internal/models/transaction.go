// internal/models/transaction.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transaction is the ledger entry for a single money movement. Rows are
// never hard-deleted; cancelled and failed entries are retained for audit.
type Transaction struct {
	BaseModel
	Reference string `json:"reference" gorm:"size:64;uniqueIndex;not null"`

	// GatewayReference is the processor-side handle (checkout session id)
	// used for verify and refund calls. Empty for ledger-only entries.
	GatewayReference string `json:"gateway_reference,omitempty" gorm:"size:255;index"`

	UserID          uuid.UUID         `json:"user_id" gorm:"type:uuid;not null;index"`
	Amount          float64           `json:"amount" gorm:"type:decimal(12,2);not null"`
	TransactionType TransactionType   `json:"transaction_type" gorm:"type:varchar(10);not null;index"`
	Status          TransactionStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	TransactionDate *time.Time        `json:"transaction_date" gorm:"index"`
	Description     string            `json:"description" gorm:"type:text"`

	// Settlement breakdown persisted at checkout time. These record the
	// rates in effect at sale time and are never recomputed from Amount.
	GatewayCharges     float64 `json:"gateway_charges" gorm:"type:decimal(12,2);default:0"`
	PlatformCommission float64 `json:"platform_commission" gorm:"type:decimal(12,2);default:0"`
	SellerEarnings     float64 `json:"seller_earnings" gorm:"type:decimal(12,2);default:0"`
	NetRevenue         float64 `json:"net_revenue" gorm:"type:decimal(12,2);default:0"`

	ExpiresAt *time.Time `json:"expires_at" gorm:"index"`

	// Refund sub-state
	RefundStatus  RefundStatus   `json:"refund_status,omitempty" gorm:"type:varchar(20);index"`
	RefundRequest *RefundRequest `json:"refund_request,omitempty" gorm:"type:jsonb"`
	RefundDetails *RefundDetails `json:"refund_details,omitempty" gorm:"type:jsonb"`
	RefundHistory RefundHistory  `json:"refund_history,omitempty" gorm:"type:jsonb"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// RefundRequest captures the buyer's refund request.
type RefundRequest struct {
	Reason      string    `json:"reason"`
	RequestedBy uuid.UUID `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
	AdminNotes  string    `json:"admin_notes,omitempty"`
}

// RefundDetails records the outcome of a processed refund. ClawbackApplied
// guards against re-debiting sellers when an approval is retried after a
// gateway failure.
type RefundDetails struct {
	GatewayRefundID string     `json:"gateway_refund_id,omitempty"`
	RefundAmount    float64    `json:"refund_amount"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessedBy     *uuid.UUID `json:"processed_by,omitempty"`
	ClawbackApplied bool       `json:"clawback_applied"`
}

// RefundEvent is one append-only audit entry in a transaction's refund history.
type RefundEvent struct {
	Action      string    `json:"action"`
	PerformedBy uuid.UUID `json:"performed_by"`
	PerformedAt time.Time `json:"performed_at"`
	Notes       string    `json:"notes,omitempty"`
}

type RefundHistory []RefundEvent

func (r *RefundRequest) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *RefundRequest) Scan(value interface{}) error {
	return scanJSON(value, r)
}

func (r *RefundDetails) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *RefundDetails) Scan(value interface{}) error {
	return scanJSON(value, r)
}

func (h RefundHistory) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

func (h *RefundHistory) Scan(value interface{}) error {
	return scanJSON(value, h)
}

func scanJSON(value, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type: %T", value)
	}
}
