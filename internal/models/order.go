// internal/models/order.go
package models

import (
	"github.com/google/uuid"
)

// Order groups one or more product line items bought in a single checkout.
// Status reaches paid exactly once, when the funding transaction completes;
// refunded requires prior paid.
type Order struct {
	BaseModel
	UserID          uuid.UUID    `json:"user_id" gorm:"type:uuid;not null;index"`
	TotalPrice      float64      `json:"total_price" gorm:"type:decimal(12,2);not null"`
	Status          OrderStatus  `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	DeliveryType    DeliveryType `json:"delivery_type" gorm:"type:varchar(20)"`
	DeliveryAddress string       `json:"delivery_address" gorm:"type:text"`

	// Relationships
	User  User        `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// OrderItem snapshots the unit price at sale time.
type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `json:"product_id" gorm:"type:uuid;not null;index"`
	Quantity  int       `json:"quantity" gorm:"not null;default:1"`
	Price     float64   `json:"price" gorm:"type:decimal(12,2);not null"`

	// Relationships
	Product Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}
