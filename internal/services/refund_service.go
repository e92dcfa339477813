// internal/services/refund_service.go
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
)

const (
	refundReasonMinLen = 10
	refundReasonMaxLen = 500

	RefundActionApprove = "approve"
	RefundActionReject  = "reject"
)

// RefundService runs the refund request/decision flow and its reconciliation
// with the gateway. Approval is retriable after a gateway failure; the
// clawback-applied marker on RefundDetails makes sure sellers are debited at
// most once across retries.
type RefundService struct {
	db            *gorm.DB
	config        *config.Config
	gateway       gateway.Gateway
	notifications *NotificationService
}

type RefundDecisionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Notes  string `json:"notes" validate:"max=500"`
}

func NewRefundService(db *gorm.DB, config *config.Config, gw gateway.Gateway, notifications *NotificationService) *RefundService {
	return &RefundService{
		db:            db,
		config:        config,
		gateway:       gw,
		notifications: notifications,
	}
}

// RequestRefund moves a completed transaction into the refund-requested
// state. Eligibility: the requester funded the transaction, the transaction
// completed within the holding window, and no request exists yet.
func (s *RefundService) RequestRefund(ctx context.Context, actorID uuid.UUID, reference, reason string) (*models.Transaction, error) {
	if len(reason) < refundReasonMinLen || len(reason) > refundReasonMaxLen {
		return nil, fmt.Errorf("%w: reason must be between %d and %d characters",
			ErrInvalidRefundReason, refundReasonMinLen, refundReasonMaxLen)
	}

	var tx models.Transaction
	if err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if tx.UserID != actorID {
		return nil, ErrNotOwner
	}

	switch tx.Status {
	case models.TransactionStatusRefund, models.TransactionStatusRefunded:
		return nil, ErrRefundAlreadyRequested
	case models.TransactionStatusCompleted:
	default:
		return nil, ErrInvalidTransactionState
	}

	if tx.TransactionDate == nil {
		return nil, ErrInvalidTransactionState
	}
	if time.Since(*tx.TransactionDate) > s.config.Settlement.HoldingWindow {
		return nil, ErrRefundWindowElapsed
	}

	now := time.Now()
	request := &models.RefundRequest{
		Reason:      reason,
		RequestedBy: actorID,
		RequestedAt: now,
	}
	history := append(tx.RefundHistory, models.RefundEvent{
		Action:      "requested",
		PerformedBy: actorID,
		PerformedAt: now,
		Notes:       reason,
	})

	// The status guard in the WHERE clause serializes concurrent requests;
	// the loser sees zero rows and reports a duplicate.
	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", tx.ID, models.TransactionStatusCompleted).
		Updates(map[string]interface{}{
			"status":         models.TransactionStatusRefund,
			"refund_status":  models.RefundStatusPending,
			"refund_request": request,
			"refund_history": history,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to record refund request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrRefundAlreadyRequested
	}

	tx.Status = models.TransactionStatusRefund
	tx.RefundStatus = models.RefundStatusPending
	tx.RefundRequest = request
	tx.RefundHistory = history

	go func() {
		if err := s.notifications.SendRefundRequestedNotification(&tx); err != nil {
			logrus.WithError(err).Warn("Failed to send refund request notification")
		}
	}()

	return &tx, nil
}

// DecideRefund is the admin action on a pending refund request. Reject is
// terminal for the cycle: the transaction stays in the refund state with
// refundStatus=rejected and the money stays where it is. Approve runs the
// reconciliation in processApproved; if the gateway call fails there, the
// request lands back in refundStatus=approved and this method may be called
// again with the same action to retry.
func (s *RefundService) DecideRefund(ctx context.Context, adminID uuid.UUID, reference string, req *RefundDecisionRequest) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if tx.Status != models.TransactionStatusRefund {
		return nil, ErrInvalidTransactionState
	}

	switch req.Action {
	case RefundActionReject:
		return s.reject(ctx, adminID, &tx, req.Notes)
	case RefundActionApprove:
		return s.approve(ctx, adminID, &tx, req.Notes)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidTransactionState, req.Action)
	}
}

func (s *RefundService) reject(ctx context.Context, adminID uuid.UUID, tx *models.Transaction, notes string) (*models.Transaction, error) {
	if tx.RefundStatus != models.RefundStatusPending {
		return nil, ErrInvalidTransactionState
	}

	now := time.Now()
	request := tx.RefundRequest
	if request != nil {
		request.AdminNotes = notes
	}
	history := append(tx.RefundHistory, models.RefundEvent{
		Action:      "rejected",
		PerformedBy: adminID,
		PerformedAt: now,
		Notes:       notes,
	})

	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND refund_status = ?", tx.ID, models.RefundStatusPending).
		Updates(map[string]interface{}{
			"refund_status":  models.RefundStatusRejected,
			"refund_request": request,
			"refund_history": history,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to reject refund: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvalidTransactionState
	}

	tx.RefundStatus = models.RefundStatusRejected
	tx.RefundHistory = history

	go func() {
		if err := s.notifications.SendRefundDecisionNotification(tx, false, notes); err != nil {
			logrus.WithError(err).Warn("Failed to send refund rejection notification")
		}
	}()

	return tx, nil
}

func (s *RefundService) approve(ctx context.Context, adminID uuid.UUID, tx *models.Transaction, notes string) (*models.Transaction, error) {
	ref, err := settlement.ParseReference(tx.Reference)
	if err != nil {
		return nil, fmt.Errorf("refund transaction has unparseable reference: %w", err)
	}

	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").Preload("Items.Product").
		First(&order, "id = ?", ref.OrderID).Error; err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if time.Since(order.CreatedAt) > s.config.Settlement.HoldingWindow {
		return nil, ErrRefundWindowElapsed
	}

	now := time.Now()
	switch tx.RefundStatus {
	case models.RefundStatusPending:
		history := append(tx.RefundHistory, models.RefundEvent{
			Action:      "approved",
			PerformedBy: adminID,
			PerformedAt: now,
			Notes:       notes,
		})
		result := s.db.WithContext(ctx).Model(&models.Transaction{}).
			Where("id = ? AND refund_status = ?", tx.ID, models.RefundStatusPending).
			Updates(map[string]interface{}{
				"refund_status":  models.RefundStatusApproved,
				"refund_history": history,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to approve refund: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrInvalidTransactionState
		}
		tx.RefundStatus = models.RefundStatusApproved
		tx.RefundHistory = history
	case models.RefundStatusApproved:
		// Retry after an earlier gateway failure; proceed to processing.
	default:
		return nil, ErrInvalidTransactionState
	}

	return s.processApproved(ctx, adminID, tx, &order)
}

// processApproved runs the reconciliation for an approved refund: seller
// clawback first, then the gateway refund, then the terminal state flip.
// The clawback may commit even when the gateway call later fails; that risk
// is deliberate and surfaced to the admin rather than rolled back.
func (s *RefundService) processApproved(ctx context.Context, adminID uuid.UUID, tx *models.Transaction, order *models.Order) (*models.Transaction, error) {
	if tx.RefundDetails == nil || !tx.RefundDetails.ClawbackApplied {
		s.applyClawback(ctx, tx, order)

		details := &models.RefundDetails{
			RefundAmount:    tx.Amount,
			ClawbackApplied: true,
		}
		if err := s.db.WithContext(ctx).Model(&models.Transaction{}).
			Where("id = ?", tx.ID).
			Update("refund_details", details).Error; err != nil {
			return nil, fmt.Errorf("failed to record clawback: %w", err)
		}
		tx.RefundDetails = details
	}

	gctx, cancel := context.WithTimeout(ctx, s.config.Payment.GatewayTimeout)
	defer cancel()

	refundResp, err := s.gateway.ProcessRefund(gctx, tx.GatewayReference, tx.Amount)
	if err != nil {
		// Leave refundStatus=approved so the admin can retry; the clawback
		// marker above keeps the retry from debiting sellers again.
		history := append(tx.RefundHistory, models.RefundEvent{
			Action:      "gateway_refund_failed",
			PerformedBy: adminID,
			PerformedAt: time.Now(),
			Notes:       err.Error(),
		})
		if uerr := s.db.WithContext(ctx).Model(&models.Transaction{}).
			Where("id = ?", tx.ID).
			Update("refund_history", history).Error; uerr != nil {
			logrus.WithError(uerr).WithField("reference", tx.Reference).Error("Failed to record gateway refund failure")
		}
		tx.RefundHistory = history
		return nil, fmt.Errorf("gateway refund failed: %w", err)
	}

	now := time.Now()
	details := tx.RefundDetails
	details.GatewayRefundID = refundResp.RefundID
	details.ProcessedAt = &now
	details.ProcessedBy = &adminID
	history := append(tx.RefundHistory, models.RefundEvent{
		Action:      "processed",
		PerformedBy: adminID,
		PerformedAt: now,
	})

	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", tx.ID).
		Updates(map[string]interface{}{
			"status":         models.TransactionStatusRefunded,
			"refund_status":  models.RefundStatusProcessed,
			"refund_details": details,
			"refund_history": history,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to finalize refund: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("status", models.OrderStatusRefunded).Error; err != nil {
		return nil, fmt.Errorf("failed to mark order refunded: %w", err)
	}

	tx.Status = models.TransactionStatusRefunded
	tx.RefundStatus = models.RefundStatusProcessed
	tx.RefundDetails = details
	tx.RefundHistory = history

	finalTx := *tx
	go func() {
		if err := s.notifications.SendRefundDecisionNotification(&finalTx, true, ""); err != nil {
			logrus.WithError(err).Warn("Failed to send refund decision notification")
		}
	}()

	return tx, nil
}

// applyClawback debits each seller's escrowed earnings for the refunded
// order. A seller whose pending balance no longer covers the line's share
// is skipped; balances never go negative and there is no cross-seller
// reconciliation. Each successful debit leaves its own ledger entry.
func (s *RefundService) applyClawback(ctx context.Context, tx *models.Transaction, order *models.Order) {
	// Reverse exactly what was credited: the earnings persisted at sale time,
	// apportioned the same way completion apportioned them.
	subtotal := tx.Amount - tx.GatewayCharges

	for _, item := range order.Items {
		earnings := settlement.ItemShare(tx.SellerEarnings, item.Price, subtotal)

		result := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ? AND pending_balance >= ?", item.Product.SellerID, earnings).
			Update("pending_balance", gorm.Expr("pending_balance - ?", earnings))
		if result.Error != nil {
			logrus.WithError(result.Error).WithField("product_id", item.ProductID).Error("Clawback debit failed")
			continue
		}
		if result.RowsAffected == 0 {
			logrus.WithFields(logrus.Fields{
				"product_id": item.ProductID,
				"seller_id":  item.Product.SellerID,
				"earnings":   earnings,
			}).Warn("Clawback skipped, insufficient pending balance")
			continue
		}

		now := time.Now()
		clawback := models.Transaction{
			Reference:       fmt.Sprintf("CLW_%s", item.ProductID),
			UserID:          item.Product.SellerID,
			Amount:          earnings,
			TransactionType: models.TransactionTypeDebit,
			Status:          models.TransactionStatusCompleted,
			TransactionDate: &now,
			Description:     fmt.Sprintf("Earnings reversal for refunded sale of %q", item.Product.Title),
		}
		if err := s.db.WithContext(ctx).Create(&clawback).Error; err != nil {
			logrus.WithError(err).WithField("product_id", item.ProductID).Error("Failed to record clawback transaction")
		}

		item := item
		go func() {
			if err := s.notifications.SendClawbackNotification(item.Product.SellerID, item.Product.Title, earnings); err != nil {
				logrus.WithError(err).Warn("Failed to send clawback notification")
			}
		}()
	}
}
