// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/thriftbay/marketplace-backend/internal/config"
	"github.com/thriftbay/marketplace-backend/internal/gateway"
	"github.com/thriftbay/marketplace-backend/internal/handlers"
	"github.com/thriftbay/marketplace-backend/internal/middleware"
	"github.com/thriftbay/marketplace-backend/internal/scheduler"
	"github.com/thriftbay/marketplace-backend/internal/services"
	"github.com/thriftbay/marketplace-backend/internal/utils"
)

// Initialize wires the service graph and the HTTP surface. The returned
// scheduler is not started; the caller owns its lifecycle.
func Initialize(db *gorm.DB, cfg *config.Config, gw gateway.Gateway) (*gin.Engine, *scheduler.Scheduler) {
	// Initialize services
	notificationService := services.NewNotificationService(db, cfg)
	orderService := services.NewOrderService(db, cfg)
	paymentService := services.NewPaymentService(db, cfg, gw, notificationService)
	refundService := services.NewRefundService(db, cfg, gw, notificationService)
	escrowService := services.NewEscrowService(db, cfg, notificationService)

	sweeps := scheduler.New(cfg, escrowService, paymentService, orderService)

	// Initialize handlers
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	refundHandler := handlers.NewRefundHandler(refundService)
	webhookHandler := handlers.NewWebhookHandler(paymentService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// Gateway webhooks (no auth; signature-verified)
	r.POST("/webhooks/payment", webhookHandler.HandlePaymentWebhook)

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.POST("", orderHandler.CreateOrder)
			orders.GET("", orderHandler.ListOrders)
			orders.GET("/:id", orderHandler.GetOrder)
		}

		// Payment routes
		payments := v1.Group("/payments")
		payments.Use(middleware.AuthRequired())
		{
			payments.POST("/initiate", paymentHandler.InitiatePayment)
			payments.GET("/verify/:reference", paymentHandler.VerifyPayment)
			payments.GET("/balance", paymentHandler.GetBalance)
			payments.GET("/transactions", paymentHandler.ListTransactions)
			payments.POST("/withdraw", paymentHandler.Withdraw)
			payments.POST("/:reference/refund", refundHandler.RequestRefund)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.POST("/refunds/:reference/decide", refundHandler.DecideRefund)
			admin.GET("/transactions", paymentHandler.ListAllTransactions)
		}
	}

	return r, sweeps
}
