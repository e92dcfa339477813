// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"

	// Orders
	KeyOrderCreated     = "order.created"
	KeyOrderNotFound    = "order.not_found"
	KeyOrderAlreadyPaid = "order.already_paid"

	// Payments
	KeyPaymentInitiated      = "payment.initiated"
	KeyPaymentSuccess        = "payment.success"
	KeyPaymentFailed         = "payment.failed"
	KeyPaymentPending        = "payment.pending"
	KeyPaymentAmountMismatch = "payment.amount_mismatch"
	KeyPaymentNotFound       = "payment.not_found"

	// Refunds
	KeyRefundRequested        = "refund.requested"
	KeyRefundApproved         = "refund.approved"
	KeyRefundRejected         = "refund.rejected"
	KeyRefundProcessed        = "refund.processed"
	KeyRefundWindowElapsed    = "refund.window_elapsed"
	KeyRefundAlreadyRequested = "refund.already_requested"
	KeyRefundInvalidState     = "refund.invalid_state"

	// Withdrawals
	KeyWithdrawalSuccess       = "withdrawal.success"
	KeyWithdrawalInsufficient  = "withdrawal.insufficient_balance"
	KeyWithdrawalInvalidPIN    = "withdrawal.invalid_pin"
	KeyWithdrawalNoRecipient   = "withdrawal.no_recipient"
	KeyWithdrawalAccountWrong  = "withdrawal.account_mismatch"
	KeyWithdrawalGatewayFailed = "withdrawal.gateway_failed"

	// Admin
	KeyAdminActionSuccess = "admin.action_success"
	KeyAdminAccessDenied  = "admin.access_denied"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"
)
