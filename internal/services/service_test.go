// internal/services/service_test.go
package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/thriftbay/marketplace-backend/internal/config"
	"github.com/thriftbay/marketplace-backend/internal/gateway"
	"github.com/thriftbay/marketplace-backend/internal/models"
)

// testEnv wires the full service graph against an in-memory database and a
// mock gateway.
type testEnv struct {
	db       *gorm.DB
	gw       *gateway.Mock
	cfg      *config.Config
	orders   *OrderService
	payments *PaymentService
	refunds  *RefundService
	escrow   *EscrowService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.Transaction{},
		&models.Notification{},
		&models.AuditLog{},
	))

	cfg := testConfig()
	gw := gateway.NewMock()
	notifications := NewNotificationService(db, cfg)

	return &testEnv{
		db:       db,
		gw:       gw,
		cfg:      cfg,
		orders:   NewOrderService(db, cfg),
		payments: NewPaymentService(db, cfg, gw, notifications),
		refunds:  NewRefundService(db, cfg, gw, notifications),
		escrow:   NewEscrowService(db, cfg, notifications),
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Payment: config.PaymentConfig{
			Currency:          "usd",
			MinimumWithdrawal: 10,
			GatewayTimeout:    5 * time.Second,
		},
		Settlement: config.SettlementConfig{
			HoldingWindow:     5 * 24 * time.Hour,
			ReservationWindow: time.Hour,
			PendingTTL:        24 * time.Hour,
			EscrowInterval:    24 * time.Hour,
			ExpiryInterval:    time.Hour,
			ReservationSweep:  10 * time.Minute,
		},
		Frontend: config.FrontendConfig{BaseURL: "http://localhost:3000"},
	}
}

func (e *testEnv) createUser(t *testing.T, userType models.UserType) *models.User {
	t.Helper()

	suffix := uuid.NewString()[:8]
	user := &models.User{
		Username: fmt.Sprintf("user_%s", suffix),
		Email:    fmt.Sprintf("user_%s@example.test", suffix),
		UserType: userType,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword("Sup3r$ecret"))
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) createProduct(t *testing.T, sellerID uuid.UUID, price float64) *models.Product {
	t.Helper()

	product := &models.Product{
		SellerID: sellerID,
		Title:    fmt.Sprintf("Vintage jacket %s", uuid.NewString()[:8]),
		Price:    price,
		Status:   models.ProductStatusActive,
	}
	require.NoError(t, e.db.Create(product).Error)
	return product
}

// completedPurchase runs a full checkout-initiate-verify cycle for a single
// product and returns the participants plus the completed transaction.
func (e *testEnv) completedPurchase(t *testing.T, price float64) (buyer, seller *models.User, product *models.Product, order *models.Order, tx *models.Transaction) {
	t.Helper()
	ctx := context.Background()

	buyer = e.createUser(t, models.UserTypeBuyer)
	seller = e.createUser(t, models.UserTypeSeller)
	product = e.createProduct(t, seller.ID, price)

	var err error
	order, err = e.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	initResp, err := e.payments.InitiateOrderPayment(ctx, buyer.ID, order.ID)
	require.NoError(t, err)

	e.gw.CompleteCharge(initResp.Reference, initResp.TotalAmount)

	status, err := e.payments.VerifyPayment(ctx, buyer.ID, initResp.Reference)
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusCompleted, status.Status)

	tx = &models.Transaction{}
	require.NoError(t, e.db.Where("reference = ?", initResp.Reference).First(tx).Error)
	return buyer, seller, product, order, tx
}

func (e *testEnv) reloadUser(t *testing.T, id uuid.UUID) *models.User {
	t.Helper()
	var user models.User
	require.NoError(t, e.db.First(&user, "id = ?", id).Error)
	return &user
}

func (e *testEnv) reloadProduct(t *testing.T, id uuid.UUID) *models.Product {
	t.Helper()
	var product models.Product
	require.NoError(t, e.db.First(&product, "id = ?", id).Error)
	return &product
}

func (e *testEnv) reloadOrder(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, e.db.First(&order, "id = ?", id).Error)
	return &order
}

func (e *testEnv) reloadTransaction(t *testing.T, reference string) *models.Transaction {
	t.Helper()
	var tx models.Transaction
	require.NoError(t, e.db.Where("reference = ?", reference).First(&tx).Error)
	return &tx
}

// backdateTransaction shifts a transaction's completion date, used to move
// it past the holding window.
func (e *testEnv) backdateTransaction(t *testing.T, reference string, age time.Duration) {
	t.Helper()
	past := time.Now().Add(-age)
	require.NoError(t, e.db.Model(&models.Transaction{}).
		Where("reference = ?", reference).
		Update("transaction_date", past).Error)
}
