// internal/handlers/refund.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/thriftbay/marketplace-backend/internal/i18n"
	"github.com/thriftbay/marketplace-backend/internal/services"
	"github.com/thriftbay/marketplace-backend/internal/utils"
)

type RefundHandler struct {
	refundService *services.RefundService
}

type requestRefundBody struct {
	Reason string `json:"reason" validate:"required,min=10,max=500"`
}

func NewRefundHandler(refundService *services.RefundService) *RefundHandler {
	return &RefundHandler{
		refundService: refundService,
	}
}

// POST /payments/:reference/refund
func (h *RefundHandler) RequestRefund(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	reference := c.Param("reference")

	var body requestRefundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&body)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	tx, err := h.refundService.RequestRefund(c.Request.Context(), userID, reference, body.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":       i18n.T(lang, i18n.KeyRefundRequested),
		"refund_status": tx.RefundStatus,
	})
}

// POST /admin/refunds/:reference/decide
func (h *RefundHandler) DecideRefund(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	reference := c.Param("reference")

	var req services.RefundDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	tx, err := h.refundService.DecideRefund(c.Request.Context(), adminID, reference, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	messageKey := i18n.KeyRefundRejected
	if req.Action == services.RefundActionApprove {
		messageKey = i18n.KeyRefundProcessed
	}

	utils.SuccessResponse(c, gin.H{
		"message":       i18n.T(lang, messageKey),
		"refund_status": tx.RefundStatus,
	})
}
