// internal/services/order_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thriftbay/marketplace-backend/internal/config"
	"github.com/thriftbay/marketplace-backend/internal/models"
	"github.com/thriftbay/marketplace-backend/internal/utils"
)

type OrderService struct {
	db     *gorm.DB
	config *config.Config
}

type CreateOrderRequest struct {
	ProductIDs      []uuid.UUID `json:"product_ids" validate:"required,min=1,dive,required"`
	DeliveryType    string      `json:"delivery_type" validate:"required,oneof=pickup doorstep"`
	DeliveryAddress string      `json:"delivery_address" validate:"required_if=DeliveryType doorstep"`
}

func NewOrderService(db *gorm.DB, config *config.Config) *OrderService {
	return &OrderService{
		db:     db,
		config: config,
	}
}

// CreateOrder reserves the requested products and creates a pending order.
// Reservations are conditional updates: a product that is sold, inactive, or
// already held by a live reservation makes the whole checkout fail, and the
// enclosing transaction rolls back any holds placed so far.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, req *CreateOrderRequest) (*models.Order, error) {
	var order *models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		staleBefore := now.Add(-s.config.Settlement.ReservationWindow)

		var items []models.OrderItem
		var total float64

		for _, productID := range req.ProductIDs {
			var product models.Product
			if err := tx.First(&product, "id = ?", productID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: product %s", ErrNotFound, productID)
				}
				return fmt.Errorf("failed to load product: %w", err)
			}

			if product.SellerID == userID {
				return fmt.Errorf("%w: cannot buy your own listing", ErrProductUnavailable)
			}

			// Place the hold. The WHERE clause is the availability check;
			// zero rows means someone else got there first.
			result := tx.Model(&models.Product{}).
				Where("id = ? AND status = ? AND is_sold = ? AND (is_reserved = ? OR reserved_at < ?)",
					product.ID, models.ProductStatusActive, false, false, staleBefore).
				Updates(map[string]interface{}{
					"is_reserved": true,
					"reserved_at": now,
				})
			if result.Error != nil {
				return fmt.Errorf("failed to reserve product: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", ErrProductUnavailable, product.Title)
			}

			items = append(items, models.OrderItem{
				ProductID: product.ID,
				Quantity:  1,
				Price:     product.Price,
			})
			total += product.Price
		}

		order = &models.Order{
			UserID:          userID,
			TotalPrice:      total,
			Status:          models.OrderStatusPending,
			DeliveryType:    models.DeliveryType(req.DeliveryType),
			DeliveryAddress: req.DeliveryAddress,
			Items:           items,
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, userID uuid.UUID, orderID uuid.UUID, isAdmin bool) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Product").
		First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.UserID != userID && !isAdmin {
		return nil, ErrNotOwner
	}
	return &order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []models.Order
	query = utils.ApplySort(query, params, []string{"created_at", "total_price", "status"})
	query = utils.ApplyPagination(query, params)
	if err := query.Preload("Items").Preload("Items.Product").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	result := utils.CreatePaginationResult(orders, total, params)
	return &result, nil
}

// ReleaseStaleReservations clears product holds older than the reservation
// window so abandoned checkouts do not keep items off the shelf. Called by
// the scheduler; returns the number of holds released.
func (s *OrderService) ReleaseStaleReservations(ctx context.Context) (int64, error) {
	staleBefore := time.Now().Add(-s.config.Settlement.ReservationWindow)

	result := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("is_reserved = ? AND is_sold = ? AND reserved_at < ?", true, false, staleBefore).
		Updates(map[string]interface{}{
			"is_reserved": false,
			"reserved_at": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to release stale reservations: %w", result.Error)
	}
	return result.RowsAffected, nil
}
