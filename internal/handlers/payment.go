// internal/handlers/payment.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/thriftbay/marketplace-backend/internal/i18n"
	"github.com/thriftbay/marketplace-backend/internal/services"
	"github.com/thriftbay/marketplace-backend/internal/utils"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// POST /payments/initiate
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	response, err := h.paymentService.InitiateOrderPayment(c.Request.Context(), userID, req.OrderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, response)
}

// GET /payments/verify/:reference
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	reference := c.Param("reference")
	if reference == "" {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "reference"), nil)
		return
	}

	response, err := h.paymentService.VerifyPayment(c.Request.Context(), userID, reference)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, response)
}

// GET /payments/balance
func (h *PaymentHandler) GetBalance(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	balance, err := h.paymentService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, balance)
}

// GET /payments/transactions
func (h *PaymentHandler) ListTransactions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)

	result, err := h.paymentService.ListTransactions(c.Request.Context(), userID, params)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// GET /admin/transactions
func (h *PaymentHandler) ListAllTransactions(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	result, err := h.paymentService.ListAllTransactions(c.Request.Context(), params)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// POST /payments/withdraw
func (h *PaymentHandler) Withdraw(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	tx, err := h.paymentService.Withdraw(c.Request.Context(), userID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyWithdrawalSuccess),
		"transaction": tx,
	})
}
