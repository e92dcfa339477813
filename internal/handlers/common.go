// internal/handlers/common.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thriftbay/marketplace-backend/internal/gateway"
	"github.com/thriftbay/marketplace-backend/internal/i18n"
	"github.com/thriftbay/marketplace-backend/internal/services"
	"github.com/thriftbay/marketplace-backend/internal/utils"
)

// currentUserID pulls the authenticated user's id out of the request
// context. A missing or malformed id already wrote the error response.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return uuid.Nil, false
	}
	return userID, true
}

// respondServiceError translates domain errors into the API error envelope.
func respondServiceError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, "payment")
	case errors.Is(err, services.ErrNotOwner):
		utils.ForbiddenResponse(c, "")
	case errors.Is(err, services.ErrAlreadyPaid):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyOrderAlreadyPaid))
	case errors.Is(err, services.ErrProductUnavailable):
		utils.ConflictResponse(c, err.Error())
	case errors.Is(err, services.ErrAmountMismatch):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPaymentAmountMismatch), nil)
	case errors.Is(err, services.ErrInvalidTransactionState):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyRefundInvalidState), nil)
	case errors.Is(err, services.ErrRefundWindowElapsed):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyRefundWindowElapsed), nil)
	case errors.Is(err, services.ErrRefundAlreadyRequested):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyRefundAlreadyRequested))
	case errors.Is(err, services.ErrInvalidRefundReason):
		utils.BadRequestResponse(c, err.Error(), nil)
	case errors.Is(err, services.ErrInsufficientBalance),
		errors.Is(err, services.ErrBelowMinimumWithdrawal):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyWithdrawalInsufficient), nil)
	case errors.Is(err, services.ErrInvalidPIN):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyWithdrawalInvalidPIN), nil)
	case errors.Is(err, services.ErrAccountMismatch):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyWithdrawalAccountWrong), nil)
	case errors.Is(err, services.ErrNoPayoutRecipient):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyWithdrawalNoRecipient), nil)
	case errors.Is(err, gateway.ErrGateway),
		errors.Is(err, gateway.ErrInsufficientGatewayBalance),
		errors.Is(err, gateway.ErrInvalidRecipient):
		utils.BadGatewayResponse(c, i18n.T(lang, i18n.KeyWithdrawalGatewayFailed))
	default:
		utils.InternalErrorResponse(c, "")
	}
}
