// internal/services/errors.go
package services

import "errors"

// Domain errors returned across the settlement boundary. Handlers translate
// these into response codes; none of them leaves persisted state mutated.
var (
	ErrNotFound                = errors.New("resource not found")
	ErrNotOwner                = errors.New("actor does not own this resource")
	ErrAlreadyPaid             = errors.New("order has already been paid")
	ErrProductUnavailable      = errors.New("product is not available")
	ErrAmountMismatch          = errors.New("gateway amount does not match expected total")
	ErrInvalidTransactionState = errors.New("invalid transaction state for this operation")
	ErrPaymentPending          = errors.New("payment has not completed yet")
	ErrRefundWindowElapsed     = errors.New("refund window has elapsed")
	ErrRefundAlreadyRequested  = errors.New("refund already requested for this transaction")
	ErrInvalidRefundReason     = errors.New("invalid refund reason")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrBelowMinimumWithdrawal  = errors.New("amount below minimum withdrawal")
	ErrInvalidPIN              = errors.New("invalid transaction pin")
	ErrAccountMismatch         = errors.New("bank account details do not match")
	ErrNoPayoutRecipient       = errors.New("no payout recipient configured")
)
