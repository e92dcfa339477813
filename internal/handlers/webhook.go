// internal/handlers/webhook.go
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/thriftbay/marketplace-backend/internal/gateway"
	"github.com/thriftbay/marketplace-backend/internal/services"
)

// WebhookHandler receives asynchronous gateway events. The gateway retries
// on non-2xx, so the handler acknowledges everything that is durably
// handled (including signature failures, which will never succeed on retry)
// and only errors out when a retry could actually help.
type WebhookHandler struct {
	paymentService *services.PaymentService
}

func NewWebhookHandler(paymentService *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
	}
}

// POST /webhooks/payment
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	signature := c.GetHeader("Stripe-Signature")

	err = h.paymentService.HandleGatewayWebhook(c.Request.Context(), payload, signature)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, gateway.ErrInvalidSignature):
		logrus.WithError(err).Warn("Rejected webhook with invalid signature")
		c.Status(http.StatusBadRequest)
	case errors.Is(err, services.ErrAmountMismatch):
		// Do not acknowledge; the transaction stays pending and the flag
		// in the logs gets a human involved.
		c.Status(http.StatusBadRequest)
	default:
		logrus.WithError(err).Error("Webhook processing failed")
		c.Status(http.StatusInternalServerError)
	}
}
