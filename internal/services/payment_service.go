// internal/services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/thriftbay/marketplace-backend/internal/config"
	"github.com/thriftbay/marketplace-backend/internal/gateway"
	"github.com/thriftbay/marketplace-backend/internal/models"
	"github.com/thriftbay/marketplace-backend/internal/settlement"
	"github.com/thriftbay/marketplace-backend/internal/utils"
)

// PaymentService owns the transaction state machine: initiation, completion
// via verify or webhook, expiry, and withdrawals. Completion is idempotent;
// the verify and webhook paths converge on the same conditional transition,
// so whichever arrives first wins and the other becomes a no-op.
type PaymentService struct {
	db            *gorm.DB
	config        *config.Config
	gateway       gateway.Gateway
	engine        *settlement.Engine
	notifications *NotificationService
}

type InitiatePaymentRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

type InitiatePaymentResponse struct {
	Reference      string  `json:"reference"`
	RedirectURL    string  `json:"redirect_url"`
	Amount         float64 `json:"amount"`
	GatewayCharges float64 `json:"gateway_charges"`
	TotalAmount    float64 `json:"total_amount"`
}

type PaymentStatusResponse struct {
	Reference string                   `json:"reference"`
	Status    models.TransactionStatus `json:"status"`
	Amount    float64                  `json:"amount"`
}

type WithdrawRequest struct {
	Amount            float64 `json:"amount" validate:"required,gt=0"`
	TransactionPIN    string  `json:"transaction_pin" validate:"required,transaction_pin"`
	BankAccountNumber string  `json:"bank_account_number" validate:"required,bank_account"`
	BankCode          string  `json:"bank_code" validate:"required,bank_code"`
}

type BalanceResponse struct {
	Balance        float64 `json:"balance"`
	PendingBalance float64 `json:"pending_balance"`
}

func NewPaymentService(db *gorm.DB, config *config.Config, gw gateway.Gateway, notifications *NotificationService) *PaymentService {
	return &PaymentService{
		db:            db,
		config:        config,
		gateway:       gw,
		engine:        settlement.NewEngine(),
		notifications: notifications,
	}
}

// InitiateOrderPayment creates (or revives) the pending funding transaction
// for an order and opens a gateway charge for the buyer-facing total. The
// settlement breakdown is persisted here, at sale time, and never recomputed.
func (s *PaymentService) InitiateOrderPayment(ctx context.Context, userID uuid.UUID, orderID uuid.UUID) (*InitiatePaymentResponse, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order.UserID != userID {
		return nil, ErrNotOwner
	}
	switch order.Status {
	case models.OrderStatusPending, models.OrderStatusFailed:
		// payable
	case models.OrderStatusPaid, models.OrderStatusRefunded:
		return nil, ErrAlreadyPaid
	default:
		return nil, ErrInvalidTransactionState
	}

	var buyer models.User
	if err := s.db.WithContext(ctx).First(&buyer, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load buyer: %w", err)
	}

	breakdown := s.engine.Compute(order.TotalPrice)
	reference := settlement.NewTxnReference(order.ID).String()
	expiresAt := time.Now().Add(s.config.Settlement.PendingTTL)

	// One ledger row per order; a retry revives the existing row with a
	// fresh gateway session instead of minting a second reference.
	var tx models.Transaction
	err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&tx).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		tx = models.Transaction{
			Reference:          reference,
			UserID:             userID,
			Amount:             breakdown.TotalAmount,
			TransactionType:    models.TransactionTypeCredit,
			Status:             models.TransactionStatusPending,
			Description:        fmt.Sprintf("Payment for order %s", order.ID),
			GatewayCharges:     breakdown.GatewayCharges,
			PlatformCommission: breakdown.Revenue,
			SellerEarnings:     breakdown.SellerEarnings,
			NetRevenue:         breakdown.Revenue,
			ExpiresAt:          &expiresAt,
		}
		if err := s.db.WithContext(ctx).Create(&tx).Error; err != nil {
			return nil, fmt.Errorf("failed to create transaction: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	default:
		switch tx.Status {
		case models.TransactionStatusPending, models.TransactionStatusCancelled, models.TransactionStatusFailed:
			// retryable
		default:
			return nil, ErrAlreadyPaid
		}
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()

	charge, err := s.gateway.InitiateCharge(gctx, buyer.Email, breakdown.TotalAmount, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate charge: %w", err)
	}

	updates := map[string]interface{}{
		"gateway_reference": charge.Reference,
		"status":            models.TransactionStatusPending,
		"expires_at":        expiresAt,
	}
	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", tx.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to store gateway reference: %w", err)
	}

	return &InitiatePaymentResponse{
		Reference:      reference,
		RedirectURL:    charge.RedirectURL,
		Amount:         order.TotalPrice,
		GatewayCharges: breakdown.GatewayCharges,
		TotalAmount:    breakdown.TotalAmount,
	}, nil
}

// VerifyPayment is the client-driven completion path. It re-queries the
// gateway and, on a paid charge with an exactly matching amount, drives the
// pending transaction to completed. Safe to call any number of times.
func (s *PaymentService) VerifyPayment(ctx context.Context, userID uuid.UUID, reference string) (*PaymentStatusResponse, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if tx.UserID != userID {
		return nil, ErrNotOwner
	}

	switch tx.Status {
	case models.TransactionStatusCompleted, models.TransactionStatusRefund, models.TransactionStatusRefunded:
		// Already settled; report success without touching the gateway.
		return s.statusResponse(&tx), nil
	case models.TransactionStatusPending:
		// fall through to gateway verification
	default:
		return nil, ErrInvalidTransactionState
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()

	verify, err := s.gateway.VerifyCharge(gctx, tx.GatewayReference)
	if err != nil {
		return nil, fmt.Errorf("failed to verify charge: %w", err)
	}

	switch verify.Status {
	case gateway.ChargeStatusFailed:
		if err := s.failPayment(ctx, &tx); err != nil {
			return nil, err
		}
		tx.Status = models.TransactionStatusFailed
		return s.statusResponse(&tx), nil
	case gateway.ChargeStatusPending:
		return s.statusResponse(&tx), nil
	}

	if verify.AmountPaid != tx.Amount {
		logrus.WithFields(logrus.Fields{
			"reference": tx.Reference,
			"expected":  tx.Amount,
			"reported":  verify.AmountPaid,
		}).Error("Gateway amount mismatch on verify")
		return nil, ErrAmountMismatch
	}

	if err := s.completePayment(ctx, &tx); err != nil {
		return nil, err
	}
	tx.Status = models.TransactionStatusCompleted
	return s.statusResponse(&tx), nil
}

// HandleGatewayWebhook is the gateway-driven completion path. Signature
// verification happens first; unknown references are acknowledged and
// dropped so the gateway stops retrying them.
func (s *PaymentService) HandleGatewayWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}
	if event.Reference == "" {
		// Event type we do not settle on; acknowledge and drop.
		return nil
	}

	var tx models.Transaction
	if err := s.db.WithContext(ctx).Where("reference = ?", event.Reference).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithField("reference", event.Reference).Warn("Webhook for unknown reference, ignoring")
			return nil
		}
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	switch event.Type {
	case gateway.WebhookEventChargeSucceeded:
		switch tx.Status {
		case models.TransactionStatusCompleted, models.TransactionStatusRefund, models.TransactionStatusRefunded:
			return nil // verify path got here first
		case models.TransactionStatusPending:
		default:
			logrus.WithFields(logrus.Fields{
				"reference": tx.Reference,
				"status":    tx.Status,
			}).Warn("Success webhook for non-pending transaction, ignoring")
			return nil
		}
		if event.AmountPaid != tx.Amount {
			logrus.WithFields(logrus.Fields{
				"reference": tx.Reference,
				"expected":  tx.Amount,
				"reported":  event.AmountPaid,
			}).Error("Gateway amount mismatch on webhook")
			return ErrAmountMismatch
		}
		return s.completePayment(ctx, &tx)

	case gateway.WebhookEventChargeFailed:
		if tx.Status != models.TransactionStatusPending {
			return nil
		}
		return s.failPayment(ctx, &tx)
	}

	return nil
}

// completePayment drives pending -> completed and applies the downstream
// effects: order paid, products sold, seller earnings into escrow. The
// status transition is the serialization point; only the caller that wins
// it applies the side effects, so concurrent verify/webhook cannot double
// credit a seller.
func (s *PaymentService) completePayment(ctx context.Context, tx *models.Transaction) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", tx.ID, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":           models.TransactionStatusCompleted,
			"transaction_date": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the race; the winner applies the side effects.
		return nil
	}

	ref, err := settlement.ParseReference(tx.Reference)
	if err != nil {
		return fmt.Errorf("completed transaction has unparseable reference: %w", err)
	}

	// A retried payment arrives with the order already cascaded to failed,
	// so the guard accepts both payable states.
	payable := []models.OrderStatus{models.OrderStatusPending, models.OrderStatusFailed}
	marked := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", ref.OrderID, payable).
		Update("status", models.OrderStatusPaid)
	if marked.Error != nil {
		return fmt.Errorf("failed to mark order paid: %w", marked.Error)
	}
	if marked.RowsAffected == 0 {
		logrus.WithField("order_id", ref.OrderID).Warn("Completed funding transaction for an order not awaiting payment")
	}

	var items []models.OrderItem
	if err := s.db.WithContext(ctx).Preload("Product").Where("order_id = ?", ref.OrderID).Find(&items).Error; err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	// Per-item earnings come from the breakdown persisted at initiation,
	// apportioned by price weight over the order subtotal.
	subtotal := tx.Amount - tx.GatewayCharges

	for _, item := range items {
		sold := s.db.WithContext(ctx).Model(&models.Product{}).
			Where("id = ? AND is_sold = ?", item.ProductID, false).
			Updates(map[string]interface{}{
				"is_sold":     true,
				"is_reserved": false,
			})
		if sold.Error != nil {
			return fmt.Errorf("failed to mark product sold: %w", sold.Error)
		}
		if sold.RowsAffected == 0 {
			continue // already marked by an earlier attempt
		}

		earnings := settlement.ItemShare(tx.SellerEarnings, item.Price, subtotal)
		if err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", item.Product.SellerID).
			Update("pending_balance", gorm.Expr("pending_balance + ?", earnings)).Error; err != nil {
			return fmt.Errorf("failed to credit seller escrow: %w", err)
		}

		item := item
		go func() {
			var seller models.User
			if err := s.db.First(&seller, "id = ?", item.Product.SellerID).Error; err != nil {
				logrus.WithError(err).Warn("Failed to load seller for sale notification")
				return
			}
			if err := s.notifications.SendSaleNotification(&seller, &item.Product, earnings); err != nil {
				logrus.WithError(err).Warn("Failed to send sale notification")
			}
		}()
	}

	go func() {
		var buyer models.User
		var order models.Order
		if err := s.db.First(&buyer, "id = ?", tx.UserID).Error; err != nil {
			logrus.WithError(err).Warn("Failed to load buyer for payment notification")
			return
		}
		if err := s.db.First(&order, "id = ?", ref.OrderID).Error; err != nil {
			logrus.WithError(err).Warn("Failed to load order for payment notification")
			return
		}
		if err := s.notifications.SendPaymentReceivedNotification(&buyer, &order, tx.Amount); err != nil {
			logrus.WithError(err).Warn("Failed to send payment notification")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"reference": tx.Reference,
		"order_id":  ref.OrderID,
		"amount":    tx.Amount,
	}).Info("Payment completed")
	return nil
}

// failPayment drives pending -> failed, fails the order, and releases the
// product holds so the items go back on the shelf.
func (s *PaymentService) failPayment(ctx context.Context, tx *models.Transaction) error {
	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", tx.ID, models.TransactionStatusPending).
		Update("status", models.TransactionStatusFailed)
	if result.Error != nil {
		return fmt.Errorf("failed to fail transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}

	ref, err := settlement.ParseReference(tx.Reference)
	if err != nil {
		return fmt.Errorf("failed transaction has unparseable reference: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", ref.OrderID, models.OrderStatusPending).
		Update("status", models.OrderStatusFailed).Error; err != nil {
		return fmt.Errorf("failed to mark order failed: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id IN (?) AND is_sold = ?",
			s.db.Model(&models.OrderItem{}).Select("product_id").Where("order_id = ?", ref.OrderID), false).
		Updates(map[string]interface{}{"is_reserved": false, "reserved_at": nil}).Error; err != nil {
		return fmt.Errorf("failed to release product holds: %w", err)
	}

	logrus.WithField("reference", tx.Reference).Info("Payment failed")
	return nil
}

// Withdraw moves withdrawable balance out through a gateway payout. The
// debit happens before the transfer; a gateway failure restores the balance
// and leaves a failed ledger entry behind for audit.
func (s *PaymentService) Withdraw(ctx context.Context, userID uuid.UUID, req *WithdrawRequest) (*models.Transaction, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.PayoutRecipient == "" {
		return nil, ErrNoPayoutRecipient
	}
	if err := user.CheckTransactionPIN(req.TransactionPIN); err != nil {
		return nil, ErrInvalidPIN
	}
	if req.BankAccountNumber != user.BankAccountNumber || req.BankCode != user.BankCode {
		return nil, ErrAccountMismatch
	}
	if req.Amount < s.config.Payment.MinimumWithdrawal {
		return nil, fmt.Errorf("%w: minimum withdrawal is %.2f", ErrBelowMinimumWithdrawal, s.config.Payment.MinimumWithdrawal)
	}

	// Conditional debit; zero rows means the balance check lost a race or
	// simply never held enough.
	debit := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND balance >= ?", userID, req.Amount).
		Update("balance", gorm.Expr("balance - ?", req.Amount))
	if debit.Error != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", debit.Error)
	}
	if debit.RowsAffected == 0 {
		return nil, ErrInsufficientBalance
	}

	nonce, err := utils.GenerateWithdrawalNonce()
	if err != nil {
		s.restoreBalance(userID, req.Amount)
		return nil, fmt.Errorf("failed to generate withdrawal reference: %w", err)
	}
	reference := settlement.NewWithdrawalReference(nonce).String()
	tx := models.Transaction{
		Reference:       reference,
		UserID:          userID,
		Amount:          req.Amount,
		TransactionType: models.TransactionTypeDebit,
		Status:          models.TransactionStatusPending,
		Description:     "Withdrawal to bank account",
	}
	if err := s.db.WithContext(ctx).Create(&tx).Error; err != nil {
		// Roll the debit back; the ledger row never existed.
		s.restoreBalance(userID, req.Amount)
		return nil, fmt.Errorf("failed to create withdrawal transaction: %w", err)
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()

	transfer, err := s.gateway.TransferPayout(gctx, user.PayoutRecipient, req.Amount, "ThriftBay withdrawal "+reference)
	if err != nil {
		s.restoreBalance(userID, req.Amount)
		if uerr := s.db.Model(&models.Transaction{}).Where("id = ?", tx.ID).
			Update("status", models.TransactionStatusFailed).Error; uerr != nil {
			logrus.WithError(uerr).WithField("reference", reference).Error("Failed to mark withdrawal failed")
		}
		return nil, fmt.Errorf("payout transfer failed: %w", err)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", tx.ID).
		Updates(map[string]interface{}{
			"status":            models.TransactionStatusCompleted,
			"transaction_date":  now,
			"gateway_reference": transfer.TransferID,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to complete withdrawal transaction: %w", err)
	}
	tx.Status = models.TransactionStatusCompleted
	tx.TransactionDate = &now
	tx.GatewayReference = transfer.TransferID

	go func() {
		if err := s.notifications.SendWithdrawalNotification(&user, req.Amount, reference); err != nil {
			logrus.WithError(err).Warn("Failed to send withdrawal notification")
		}
	}()

	return &tx, nil
}

// ExpirePendingTransactions cancels funding transactions whose gateway
// session outlived the pending TTL. Returns the number of rows cancelled.
func (s *PaymentService) ExpirePendingTransactions(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("status = ? AND transaction_type = ? AND expires_at IS NOT NULL AND expires_at < ?",
			models.TransactionStatusPending, models.TransactionTypeCredit, time.Now()).
		Update("status", models.TransactionStatusCancelled)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire pending transactions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PaymentService) GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &BalanceResponse{
		Balance:        user.Balance,
		PendingBalance: user.PendingBalance,
	}, nil
}

func (s *PaymentService) ListTransactions(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var transactions []models.Transaction
	query = utils.ApplySort(query, params, []string{"created_at", "amount", "status", "transaction_date"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	result := utils.CreatePaginationResult(transactions, total, params)
	return &result, nil
}

// ListAllTransactions is the admin view of the ledger, filterable by status
// and searchable by reference.
func (s *PaymentService) ListAllTransactions(ctx context.Context, params utils.PaginationParams) (*utils.PaginationResult, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Search != "" {
		query = query.Where("reference LIKE ?", params.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var transactions []models.Transaction
	query = utils.ApplySort(query, params, []string{"created_at", "amount", "status", "transaction_date"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	result := utils.CreatePaginationResult(transactions, total, params)
	return &result, nil
}

func (s *PaymentService) statusResponse(tx *models.Transaction) *PaymentStatusResponse {
	return &PaymentStatusResponse{
		Reference: tx.Reference,
		Status:    tx.Status,
		Amount:    tx.Amount,
	}
}

func (s *PaymentService) restoreBalance(userID uuid.UUID, amount float64) {
	if err := s.db.Model(&models.User{}).Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  amount,
		}).Error("Failed to restore balance after payout failure")
	}
}

func (s *PaymentService) gatewayCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.Payment.GatewayTimeout)
}
