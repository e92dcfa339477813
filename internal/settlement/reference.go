// internal/settlement/reference.go
package settlement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ReferenceKind distinguishes the reference schemes carried on transactions.
type ReferenceKind string

const (
	ReferenceKindOrder      ReferenceKind = "order"
	ReferenceKindTxn        ReferenceKind = "txn"
	ReferenceKindWithdrawal ReferenceKind = "WD"
)

var ErrInvalidReference = errors.New("invalid payment reference")

// Reference correlates a transaction to its originating order and/or
// gateway charge. It replaces ad-hoc string splitting with a structured
// value that carries the order id explicitly.
type Reference struct {
	Kind    ReferenceKind
	OrderID uuid.UUID // set for order/txn kinds
	Nonce   string    // set for withdrawal kind
}

func NewOrderReference(orderID uuid.UUID) Reference {
	return Reference{Kind: ReferenceKindOrder, OrderID: orderID}
}

func NewTxnReference(orderID uuid.UUID) Reference {
	return Reference{Kind: ReferenceKindTxn, OrderID: orderID}
}

func NewWithdrawalReference(nonce string) Reference {
	return Reference{Kind: ReferenceKindWithdrawal, Nonce: nonce}
}

func (r Reference) String() string {
	if r.Kind == ReferenceKindWithdrawal {
		return fmt.Sprintf("%s_%s", r.Kind, r.Nonce)
	}
	return fmt.Sprintf("%s_%s", r.Kind, r.OrderID)
}

// ParseReference parses the order_<id>, txn_<id> and WD_<nonce> schemes.
func ParseReference(s string) (Reference, error) {
	kind, rest, ok := strings.Cut(s, "_")
	if !ok || rest == "" {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}

	switch ReferenceKind(kind) {
	case ReferenceKindWithdrawal:
		return Reference{Kind: ReferenceKindWithdrawal, Nonce: rest}, nil
	case ReferenceKindOrder, ReferenceKindTxn:
		orderID, err := uuid.Parse(rest)
		if err != nil {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
		}
		return Reference{Kind: ReferenceKind(kind), OrderID: orderID}, nil
	default:
		return Reference{}, fmt.Errorf("%w: unknown scheme in %q", ErrInvalidReference, s)
	}
}
