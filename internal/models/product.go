// internal/models/product.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Product struct {
	BaseModel
	SellerID    uuid.UUID      `json:"seller_id" gorm:"type:uuid;not null;index"`
	Title       string         `json:"title" gorm:"size:255;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Category    string         `json:"category" gorm:"size:100;index"`
	Price       float64        `json:"price" gorm:"type:decimal(12,2);not null"`
	Images      pq.StringArray `json:"images" gorm:"type:text[]"`
	Tags        pq.StringArray `json:"tags" gorm:"type:text[]"`
	Status      ProductStatus  `json:"status" gorm:"type:varchar(20);default:'draft';index"`

	IsSold bool `json:"is_sold" gorm:"default:false;index"`

	// HasSettled flips false->true exactly once, by the escrow release
	// sweep, after the funding transaction clears the holding window.
	HasSettled bool `json:"has_settled" gorm:"default:false;index"`

	// Checkout places a temporary hold; the reservation sweep clears holds
	// older than the reservation window.
	IsReserved bool       `json:"is_reserved" gorm:"default:false;index"`
	ReservedAt *time.Time `json:"reserved_at"`

	// Relationships
	Seller User `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
}
