// internal/services/order_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftbay/marketplace-backend/internal/models"
)

func TestCreateOrderReservesProducts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	first := env.createProduct(t, seller.ID, 120)
	second := env.createProduct(t, seller.ID, 80)

	order, err := env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:      []uuid.UUID{first.ID, second.ID},
		DeliveryType:    string(models.DeliveryTypeDoorstep),
		DeliveryAddress: "12 Example Close",
	})
	require.NoError(t, err)

	assert.Equal(t, 200.0, order.TotalPrice)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 2)

	for _, productID := range []uuid.UUID{first.ID, second.ID} {
		p := env.reloadProduct(t, productID)
		assert.True(t, p.IsReserved)
		require.NotNil(t, p.ReservedAt)
	}
}

func TestCreateOrderRejectsUnavailableProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	rival := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	available := env.createProduct(t, seller.ID, 100)
	contested := env.createProduct(t, seller.ID, 100)

	_, err := env.orders.CreateOrder(ctx, rival.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{contested.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	// The whole checkout fails and the first product's hold rolls back.
	_, err = env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{available.ID, contested.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	assert.ErrorIs(t, err, ErrProductUnavailable)
	assert.False(t, env.reloadProduct(t, available.ID).IsReserved)
}

func TestCreateOrderRejectsOwnListing(t *testing.T) {
	env := newTestEnv(t)

	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 100)

	_, err := env.orders.CreateOrder(context.Background(), seller.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	assert.ErrorIs(t, err, ErrProductUnavailable)
}

func TestCreateOrderReclaimsStaleHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	abandoner := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 100)

	_, err := env.orders.CreateOrder(ctx, abandoner.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	// Age the hold past the reservation window; a new checkout takes over.
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, env.db.Model(&models.Product{}).
		Where("id = ?", product.ID).
		Update("reserved_at", stale).Error)

	_, err = env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	assert.NoError(t, err)
}

func TestGetOrderOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	stranger := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 100)

	order, err := env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	_, err = env.orders.GetOrder(ctx, stranger.ID, order.ID, false)
	assert.ErrorIs(t, err, ErrNotOwner)

	// Admins can inspect any order.
	got, err := env.orders.GetOrder(ctx, stranger.ID, order.ID, true)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	got, err = env.orders.GetOrder(ctx, buyer.ID, order.ID, false)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, product.ID, got.Items[0].ProductID)
}

func TestReleaseStaleReservations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyer := env.createUser(t, models.UserTypeBuyer)
	seller := env.createUser(t, models.UserTypeSeller)
	product := env.createProduct(t, seller.ID, 100)

	_, err := env.orders.CreateOrder(ctx, buyer.ID, &CreateOrderRequest{
		ProductIDs:   []uuid.UUID{product.ID},
		DeliveryType: string(models.DeliveryTypePickup),
	})
	require.NoError(t, err)

	// Fresh hold survives the sweep.
	released, err := env.orders.ReleaseStaleReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)

	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, env.db.Model(&models.Product{}).
		Where("id = ?", product.ID).
		Update("reserved_at", stale).Error)

	released, err = env.orders.ReleaseStaleReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)
	assert.False(t, env.reloadProduct(t, product.ID).IsReserved)
}
