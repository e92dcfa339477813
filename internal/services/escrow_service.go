// internal/services/escrow_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/thriftbay/marketplace-backend/internal/config"
	"github.com/thriftbay/marketplace-backend/internal/models"
	"github.com/thriftbay/marketplace-backend/internal/settlement"
)

// EscrowService promotes escrowed seller earnings to withdrawable balance
// once the funding transaction clears the holding window, and pays referral
// rewards out of platform revenue. Each product's release is its own
// database transaction, so one bad record never stalls the rest of the sweep.
type EscrowService struct {
	db            *gorm.DB
	config        *config.Config
	engine        *settlement.Engine
	notifications *NotificationService
}

// internal skip signals for the per-product release transaction
var (
	errAlreadySettled     = errors.New("product already settled")
	errInsufficientEscrow = errors.New("pending balance below earnings")
)

func NewEscrowService(db *gorm.DB, config *config.Config, notifications *NotificationService) *EscrowService {
	return &EscrowService{
		db:            db,
		config:        config,
		engine:        settlement.NewEngine(),
		notifications: notifications,
	}
}

// ReleaseEscrow runs one sweep over funding transactions older than the
// holding window. Returns the number of products released. Safe to run
// concurrently with itself and with request traffic: every mutation is a
// conditional update, and a rerun over already-settled products is a no-op.
func (s *EscrowService) ReleaseEscrow(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.config.Settlement.HoldingWindow)

	var candidates []models.Transaction
	err := s.db.WithContext(ctx).
		Where("status = ? AND transaction_type = ? AND transaction_date IS NOT NULL AND transaction_date <= ?",
			models.TransactionStatusCompleted, models.TransactionTypeCredit, cutoff).
		Where("reference LIKE 'txn_%' OR reference LIKE 'order_%'").
		Order("transaction_date ASC").
		Find(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load escrow candidates: %w", err)
	}

	released := 0
	for i := range candidates {
		n, err := s.releaseTransaction(ctx, &candidates[i])
		if err != nil {
			logrus.WithError(err).WithField("reference", candidates[i].Reference).Error("Escrow release failed for transaction, continuing sweep")
			continue
		}
		released += n
	}
	return released, nil
}

func (s *EscrowService) releaseTransaction(ctx context.Context, tx *models.Transaction) (int, error) {
	ref, err := settlement.ParseReference(tx.Reference)
	if err != nil {
		return 0, fmt.Errorf("unparseable reference: %w", err)
	}

	var items []models.OrderItem
	if err := s.db.WithContext(ctx).Preload("Product").
		Where("order_id = ?", ref.OrderID).Find(&items).Error; err != nil {
		return 0, fmt.Errorf("failed to load order items: %w", err)
	}

	settledBefore := 0
	for _, item := range items {
		if item.Product.HasSettled {
			settledBefore++
		}
	}

	// Apportion the earnings persisted at sale time by price weight; the
	// current commission rate plays no part in releasing an old transaction.
	subtotal := tx.Amount - tx.GatewayCharges

	released := 0
	for _, item := range items {
		if item.Product.HasSettled || !item.Product.IsSold {
			continue
		}

		earnings := settlement.ItemShare(tx.SellerEarnings, item.Price, subtotal)
		err := s.releaseProduct(ctx, &item, earnings)
		switch {
		case errors.Is(err, errAlreadySettled):
			continue
		case errors.Is(err, errInsufficientEscrow):
			logrus.WithFields(logrus.Fields{
				"product_id": item.ProductID,
				"seller_id":  item.Product.SellerID,
				"earnings":   earnings,
			}).Warn("Escrow release skipped, insufficient pending balance")
			continue
		case err != nil:
			logrus.WithError(err).WithField("product_id", item.ProductID).Error("Escrow release failed for product, continuing")
			continue
		}

		released++

		item := item
		go func() {
			if err := s.notifications.SendEscrowReleasedNotification(item.Product.SellerID, item.Product.Title, earnings); err != nil {
				logrus.WithError(err).Warn("Failed to send escrow release notification")
			}
		}()
	}

	// The referral reward is paid once per funding transaction, on the
	// sweep that settles its first product. The deterministic reference on
	// the reward row backstops this against concurrent sweeps.
	if released > 0 && settledBefore == 0 {
		if err := s.payReferralReward(ctx, tx, ref); err != nil {
			logrus.WithError(err).WithField("reference", tx.Reference).Error("Referral reward disbursement failed")
		}
	}

	return released, nil
}

// releaseProduct performs the atomic settle-and-move for one product: flip
// hasSettled, move the earnings from pending to available, and write the
// release ledger entry. Any failed condition rolls the whole unit back.
func (s *EscrowService) releaseProduct(ctx context.Context, item *models.OrderItem, earnings float64) error {
	return s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		settle := dbtx.Model(&models.Product{}).
			Where("id = ? AND has_settled = ?", item.ProductID, false).
			Update("has_settled", true)
		if settle.Error != nil {
			return settle.Error
		}
		if settle.RowsAffected == 0 {
			return errAlreadySettled
		}

		move := dbtx.Model(&models.User{}).
			Where("id = ? AND pending_balance >= ?", item.Product.SellerID, earnings).
			Updates(map[string]interface{}{
				"pending_balance": gorm.Expr("pending_balance - ?", earnings),
				"balance":         gorm.Expr("balance + ?", earnings),
			})
		if move.Error != nil {
			return move.Error
		}
		if move.RowsAffected == 0 {
			return errInsufficientEscrow
		}

		now := time.Now()
		release := models.Transaction{
			Reference:       fmt.Sprintf("ESC_%s", item.ProductID),
			UserID:          item.Product.SellerID,
			Amount:          earnings,
			TransactionType: models.TransactionTypeCredit,
			Status:          models.TransactionStatusCompleted,
			TransactionDate: &now,
			Description:     fmt.Sprintf("Escrow release for sale of %q", item.Product.Title),
		}
		return dbtx.Create(&release).Error
	})
}

func (s *EscrowService) payReferralReward(ctx context.Context, tx *models.Transaction, ref settlement.Reference) error {
	var buyer models.User
	if err := s.db.WithContext(ctx).First(&buyer, "id = ?", tx.UserID).Error; err != nil {
		return fmt.Errorf("failed to load buyer: %w", err)
	}
	if buyer.ReferredBy == nil {
		return nil
	}

	// Revenue persisted at checkout is the single source of truth; the
	// reward is never recomputed from the amount.
	reward := s.engine.ReferralReward(tx.NetRevenue)
	if reward <= 0 {
		return nil
	}

	reference := fmt.Sprintf("REF_%s", ref.OrderID)
	var existing models.Transaction
	err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&existing).Error
	if err == nil {
		return nil // already rewarded
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check reward ledger: %w", err)
	}

	referrerID := *buyer.ReferredBy
	err = s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		now := time.Now()
		rewardTx := models.Transaction{
			Reference:       reference,
			UserID:          referrerID,
			Amount:          reward,
			TransactionType: models.TransactionTypeCredit,
			Status:          models.TransactionStatusCompleted,
			TransactionDate: &now,
			Description:     fmt.Sprintf("Referral reward for purchase by %s", buyer.Username),
		}
		if err := dbtx.Create(&rewardTx).Error; err != nil {
			return err
		}

		// No holding period on referral rewards.
		return dbtx.Model(&models.User{}).
			Where("id = ?", referrerID).
			Update("balance", gorm.Expr("balance + ?", reward)).Error
	})
	if err != nil {
		return err
	}

	go func() {
		if err := s.notifications.SendReferralRewardNotification(referrerID, reward); err != nil {
			logrus.WithError(err).Warn("Failed to send referral reward notification")
		}
	}()

	return nil
}
