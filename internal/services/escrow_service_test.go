// internal/services/escrow_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftbay/marketplace-backend/internal/models"
)

func TestReleaseEscrowAfterHoldingWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, seller, product, _, tx := env.completedPurchase(t, 1000)
	env.backdateTransaction(t, tx.Reference, 6*24*time.Hour)

	released, err := env.escrow.ReleaseEscrow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	reloaded := env.reloadUser(t, seller.ID)
	assert.Equal(t, 0.0, reloaded.PendingBalance)
	assert.Equal(t, 950.0, reloaded.Balance)
	assert.True(t, env.reloadProduct(t, product.ID).HasSettled)

	// Release leaves its own ledger entry.
	var audit models.Transaction
	require.NoError(t, env.db.Where("reference = ?", "ESC_"+product.ID.String()).First(&audit).Error)
	assert.Equal(t, models.TransactionTypeCredit, audit.TransactionType)
	assert.Equal(t, 950.0, audit.Amount)
	assert.Equal(t, models.TransactionStatusCompleted, audit.Status)
}

func TestReleaseEscrowUsesStoredBreakdown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, seller, product, _, tx := env.completedPurchase(t, 1000)
	env.backdateTransaction(t, tx.Reference, 6*24*time.Hour)

	// Simulate a transaction settled under an older commission rate: the
	// persisted earnings differ from what today's rate would compute.
	require.NoError(t, env.db.Model(&models.Transaction{}).
		Where("reference = ?", tx.Reference).
		Update("seller_earnings", 900).Error)
	require.NoError(t, env.db.Model(&models.User{}).
		Where("id = ?", seller.ID).
		Update("pending_balance", 900).Error)

	released, err := env.escrow.ReleaseEscrow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	reloaded := env.reloadUser(t, seller.ID)
	assert.Equal(t, 0.0, reloaded.PendingBalance)
	assert.Equal(t, 900.0, reloaded.Balance, "release must move the earnings persisted at sale time")

	var audit models.Transaction
	require.NoError(t, env.db.Where("reference = ?", "ESC_"+product.ID.String()).First(&audit).Error)
	assert.Equal(t, 900.0, audit.Amount)
}

func TestReleaseEscrowRespectsHoldingWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, seller, product, _, tx := env.completedPurchase(t, 1000)
	env.backdateTransaction(t, tx.Reference, 4*24*time.Hour)

	released, err := env.escrow.ReleaseEscrow(ctx)
	require.NoError(t, err)
	assert.Zero(t, released, "earnings inside the holding window must stay in escrow")

	reloaded := env.reloadUser(t, seller.ID)
	assert.Equal(t, 950.0, reloaded.PendingBalance)
	assert.Equal(t, 0.0, reloaded.Balance)
	assert.False(t, env.reloadProduct(t, product.ID).HasSettled)
}

func TestReleaseEscrowRerunIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, seller, _, _, tx := env.completedPurchase(t, 1000)
	env.backdateTransaction(t, tx.Reference, 6*24*time.Hour)

	released, err := env.escrow.ReleaseEscrow(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, released)

	released, err = env.escrow.ReleaseEscrow(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)

	reloaded := env.reloadUser(t, seller.ID)
	assert.Equal(t, 0.0, reloaded.PendingBalance)
	assert.Equal(t, 950.0, reloaded.Balance, "second sweep must not credit twice")
}

func TestReleaseEscrowPaysReferralReward(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	referrer := env.createUser(t, models.UserTypeBuyer)

	buyer, _, _, order, tx := env.completedPurchase(t, 1000)
	require.NoError(t, env.db.Model(&models.User{}).
		Where("id = ?", buyer.ID).
		Update("referred_by", referrer.ID).Error)

	env.backdateTransaction(t, tx.Reference, 6*24*time.Hour)

	_, err := env.escrow.ReleaseEscrow(ctx)
	require.NoError(t, err)

	// revenue=50 at checkout time, reward=round(50*0.01)=1
	assert.Equal(t, 1.0, env.reloadUser(t, referrer.ID).Balance)

	var reward models.Transaction
	require.NoError(t, env.db.Where("reference = ?", "REF_"+order.ID.String()).First(&reward).Error)
	assert.Equal(t, 1.0, reward.Amount)
	assert.Equal(t, models.TransactionTypeCredit, reward.TransactionType)

	// Rerun: the reward is not paid a second time.
	_, err = env.escrow.ReleaseEscrow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, env.reloadUser(t, referrer.ID).Balance)
}

func TestReleaseEscrowNoRewardForUnreferredBuyer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, _, order, tx := env.completedPurchase(t, 1000)
	env.backdateTransaction(t, tx.Reference, 6*24*time.Hour)

	_, err := env.escrow.ReleaseEscrow(ctx)
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&models.Transaction{}).
		Where("reference = ?", "REF_"+order.ID.String()).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReleaseEscrowSkipsDrainedPendingBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, seller, product, _, tx := env.completedPurchase(t, 1000)
	env.backdateTransaction(t, tx.Reference, 6*24*time.Hour)

	require.NoError(t, env.db.Model(&models.User{}).
		Where("id = ?", seller.ID).
		Update("pending_balance", 0).Error)

	released, err := env.escrow.ReleaseEscrow(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)

	reloaded := env.reloadUser(t, seller.ID)
	assert.Equal(t, 0.0, reloaded.Balance, "release must never overdraw pending balance")
	assert.False(t, env.reloadProduct(t, product.ID).HasSettled, "unreleased product stays unsettled for a later sweep")
}

func TestReleaseEscrowIgnoresRefundedTransactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer, seller, _, _, tx := env.completedPurchase(t, 1000)
	admin := env.createUser(t, models.UserTypeAdmin)

	_, err := env.refunds.RequestRefund(ctx, buyer.ID, tx.Reference, refundReason)
	require.NoError(t, err)
	_, err = env.refunds.DecideRefund(ctx, admin.ID, tx.Reference, &RefundDecisionRequest{Action: RefundActionApprove})
	require.NoError(t, err)

	env.backdateTransaction(t, tx.Reference, 6*24*time.Hour)

	released, err := env.escrow.ReleaseEscrow(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)

	reloaded := env.reloadUser(t, seller.ID)
	assert.Equal(t, 0.0, reloaded.Balance)
	assert.Equal(t, 0.0, reloaded.PendingBalance)
}
