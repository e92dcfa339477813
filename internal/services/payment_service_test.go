// internal/services/payment_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftbay/marketplace-backend/internal/gateway"
	"github.com/thriftbay/marketplace-backend/internal/models"
)

func TestInitiateOrderPaymentPersistsBreakdown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 1000)

	order, err := env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	resp, err := env.payments.InitiateOrderPayment(ctx, buyer.ID, order.ID)
	require.NoError(t, err)

	assert.Equal(t, 115.0, resp.GatewayCharges)
	assert.Equal(t, 1115.0, resp.TotalAmount)
	assert.NotEmpty(t, resp.RedirectURL)

	tx := env.reloadTransaction(t, resp.Reference)
	assert.Equal(t, models.TransactionStatusPending, tx.Status)
	assert.Equal(t, models.TransactionTypeCredit, tx.TransactionType)
	assert.Equal(t, 1115.0, tx.Amount)
	assert.Equal(t, 115.0, tx.GatewayCharges)
	assert.Equal(t, 950.0, tx.SellerEarnings)
	assert.Equal(t, 50.0, tx.NetRevenue)
	assert.NotEmpty(t, tx.GatewayReference)
	require.NotNil(t, tx.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(env.cfg.Settlement.PendingTTL), *tx.ExpiresAt, time.Minute)
}

func TestInitiateOrderPaymentRejectsWrongActor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	other := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 100)

	order, err := env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	_, err = env.payments.InitiateOrderPayment(ctx, other.ID, order.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestInitiateOrderPaymentRetryReusesReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 200)

	order, err := env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	first, err := env.payments.InitiateOrderPayment(ctx, buyer.ID, order.ID)
	require.NoError(t, err)
	second, err := env.payments.InitiateOrderPayment(ctx, buyer.ID, order.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Reference, second.Reference)

	var count int64
	require.NoError(t, env.db.Model(&models.Transaction{}).
		Where("user_id = ?", buyer.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "retry must not mint a second ledger row")
}

func TestVerifyPaymentCompletesSettlement(t *testing.T) {
	env := newTestEnv(t)

	_, seller, product, order, tx := env.completedPurchase(t, 1000)

	assert.Equal(t, models.OrderStatusPaid, env.reloadOrder(t, order.ID).Status)

	reloaded := env.reloadProduct(t, product.ID)
	assert.True(t, reloaded.IsSold)
	assert.False(t, reloaded.IsReserved)
	assert.False(t, reloaded.HasSettled)

	assert.Equal(t, 950.0, env.reloadUser(t, seller.ID).PendingBalance)
	require.NotNil(t, tx.TransactionDate)
}

func TestVerifyPaymentIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer, seller, _, _, tx := env.completedPurchase(t, 1000)

	// Second verification and a duplicate webhook delivery, racing late.
	status, err := env.payments.VerifyPayment(ctx, buyer.ID, tx.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, status.Status)

	require.NoError(t, env.payments.HandleGatewayWebhook(ctx, []byte(tx.Reference), "mock-signature"))

	assert.Equal(t, 950.0, env.reloadUser(t, seller.ID).PendingBalance,
		"duplicate completion paths must credit the seller exactly once")
}

func TestVerifyPaymentAmountMismatchStaysPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 1000)

	order, err := env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	resp, err := env.payments.InitiateOrderPayment(ctx, buyer.ID, order.ID)
	require.NoError(t, err)

	env.gw.CompleteCharge(resp.Reference, resp.TotalAmount-1)

	_, err = env.payments.VerifyPayment(ctx, buyer.ID, resp.Reference)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	assert.Equal(t, models.TransactionStatusPending, env.reloadTransaction(t, resp.Reference).Status)
	assert.Equal(t, 0.0, env.reloadUser(t, seller.ID).PendingBalance)
}

func TestWebhookFailureCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 300)

	order, err := env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	resp, err := env.payments.InitiateOrderPayment(ctx, buyer.ID, order.ID)
	require.NoError(t, err)

	env.gw.FailCharge(resp.Reference)
	require.NoError(t, env.payments.HandleGatewayWebhook(ctx, []byte(resp.Reference), "mock-signature"))

	assert.Equal(t, models.TransactionStatusFailed, env.reloadTransaction(t, resp.Reference).Status)
	assert.Equal(t, models.OrderStatusFailed, env.reloadOrder(t, order.ID).Status)
	assert.False(t, env.reloadProduct(t, product.ID).IsReserved, "failed payment must free the held product")
}

func TestRetryAfterFailedChargeMarksOrderPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 1000)

	order, err := env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	first, err := env.payments.InitiateOrderPayment(ctx, buyer.ID, order.ID)
	require.NoError(t, err)

	env.gw.FailCharge(first.Reference)
	require.NoError(t, env.payments.HandleGatewayWebhook(ctx, []byte(first.Reference), "mock-signature"))
	require.Equal(t, models.OrderStatusFailed, env.reloadOrder(t, order.ID).Status)

	retry, err := env.payments.InitiateOrderPayment(ctx, buyer.ID, order.ID)
	require.NoError(t, err)

	env.gw.CompleteCharge(retry.Reference, retry.TotalAmount)
	status, err := env.payments.VerifyPayment(ctx, buyer.ID, retry.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, status.Status)

	assert.Equal(t, models.OrderStatusPaid, env.reloadOrder(t, order.ID).Status,
		"retried payment must lift the order out of failed")
	assert.True(t, env.reloadProduct(t, product.ID).IsSold)
	assert.Equal(t, 950.0, env.reloadUser(t, seller.ID).PendingBalance)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)

	err := env.payments.HandleGatewayWebhook(context.Background(), []byte("txn_whatever"), "forged")
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestWebhookUnknownReferenceIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	err := env.payments.HandleGatewayWebhook(context.Background(),
		[]byte("txn_"+uuid.NewString()), "mock-signature")
	assert.NoError(t, err)
}

func TestWithdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seller := env.createUser(t, models.UserTypeSeller)
	require.NoError(t, seller.SetTransactionPIN("1234"))
	seller.Balance = 500
	seller.PayoutRecipient = "acct_test"
	seller.BankAccountNumber = "0123456789"
	seller.BankCode = "058"
	require.NoError(t, env.db.Save(seller).Error)

	tx, err := env.payments.Withdraw(ctx, seller.ID, &WithdrawRequest{
		Amount:            100,
		TransactionPIN:    "1234",
		BankAccountNumber: "0123456789",
		BankCode:          "058",
	})
	require.NoError(t, err)

	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	assert.Equal(t, models.TransactionTypeDebit, tx.TransactionType)
	assert.Contains(t, tx.Reference, "WD_")
	assert.Equal(t, 400.0, env.reloadUser(t, seller.ID).Balance)
	assert.Equal(t, 1, env.gw.PayoutCount())
}

func TestWithdrawValidationFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seller := env.createUser(t, models.UserTypeSeller)
	require.NoError(t, seller.SetTransactionPIN("1234"))
	seller.Balance = 50
	seller.PayoutRecipient = "acct_test"
	seller.BankAccountNumber = "0123456789"
	seller.BankCode = "058"
	require.NoError(t, env.db.Save(seller).Error)

	tests := []struct {
		name    string
		req     WithdrawRequest
		wantErr error
	}{
		{"wrong pin", WithdrawRequest{Amount: 20, TransactionPIN: "9999", BankAccountNumber: "0123456789", BankCode: "058"}, ErrInvalidPIN},
		{"wrong account", WithdrawRequest{Amount: 20, TransactionPIN: "1234", BankAccountNumber: "9999999999", BankCode: "058"}, ErrAccountMismatch},
		{"wrong bank code", WithdrawRequest{Amount: 20, TransactionPIN: "1234", BankAccountNumber: "0123456789", BankCode: "999"}, ErrAccountMismatch},
		{"below minimum", WithdrawRequest{Amount: 5, TransactionPIN: "1234", BankAccountNumber: "0123456789", BankCode: "058"}, ErrBelowMinimumWithdrawal},
		{"over balance", WithdrawRequest{Amount: 1000, TransactionPIN: "1234", BankAccountNumber: "0123456789", BankCode: "058"}, ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.payments.Withdraw(ctx, seller.ID, &tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, 50.0, env.reloadUser(t, seller.ID).Balance, "failed attempts must not move money")
	assert.Equal(t, 0, env.gw.PayoutCount())
}

func TestWithdrawWithoutRecipient(t *testing.T) {
	env := newTestEnv(t)

	seller := env.createUser(t, models.UserTypeSeller)
	require.NoError(t, seller.SetTransactionPIN("1234"))
	seller.Balance = 100
	seller.BankAccountNumber = "0123456789"
	seller.BankCode = "058"
	require.NoError(t, env.db.Save(seller).Error)

	_, err := env.payments.Withdraw(context.Background(), seller.ID, &WithdrawRequest{
		Amount:            50,
		TransactionPIN:    "1234",
		BankAccountNumber: "0123456789",
		BankCode:          "058",
	})
	assert.ErrorIs(t, err, ErrNoPayoutRecipient)
}

func TestWithdrawGatewayFailureRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seller := env.createUser(t, models.UserTypeSeller)
	require.NoError(t, seller.SetTransactionPIN("1234"))
	seller.Balance = 500
	seller.PayoutRecipient = "acct_test"
	seller.BankAccountNumber = "0123456789"
	seller.BankCode = "058"
	require.NoError(t, env.db.Save(seller).Error)

	env.gw.FailNext = errors.New("gateway down")

	_, err := env.payments.Withdraw(ctx, seller.ID, &WithdrawRequest{
		Amount:            100,
		TransactionPIN:    "1234",
		BankAccountNumber: "0123456789",
		BankCode:          "058",
	})
	require.Error(t, err)

	assert.Equal(t, 500.0, env.reloadUser(t, seller.ID).Balance)

	var failed models.Transaction
	require.NoError(t, env.db.Where("user_id = ? AND status = ?", seller.ID, models.TransactionStatusFailed).First(&failed).Error)
	assert.Equal(t, models.TransactionTypeDebit, failed.TransactionType)
}

func TestExpirePendingTransactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 100)

	order, err := env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	resp, err := env.payments.InitiateOrderPayment(ctx, buyer.ID, order.ID)
	require.NoError(t, err)

	// Not yet expired.
	expired, err := env.payments.ExpirePendingTransactions(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, env.db.Model(&models.Transaction{}).
		Where("reference = ?", resp.Reference).
		Update("expires_at", past).Error)

	expired, err = env.payments.ExpirePendingTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)
	assert.Equal(t, models.TransactionStatusCancelled, env.reloadTransaction(t, resp.Reference).Status)
}

func TestGetBalance(t *testing.T) {
	env := newTestEnv(t)

	seller := env.createUser(t, models.UserTypeSeller)
	seller.Balance = 300
	seller.PendingBalance = 120
	require.NoError(t, env.db.Save(seller).Error)

	balance, err := env.payments.GetBalance(context.Background(), seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, balance.Balance)
	assert.Equal(t, 120.0, balance.PendingBalance)
}
