// internal/models/notification.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an in-app message. Delivery is best-effort; settlement
// flows never fail because a notification could not be written.
type Notification struct {
	BaseModel
	RecipientID uuid.UUID        `json:"recipient_id" gorm:"type:uuid;not null;index"`
	Type        NotificationType `json:"type" gorm:"type:varchar(20);not null;index"`
	Title       string           `json:"title" gorm:"size:255;not null"`
	Body        string           `json:"body" gorm:"type:text;not null"`
	ReadAt      *time.Time       `json:"read_at"`

	// Relationships
	Recipient User `json:"recipient,omitempty" gorm:"foreignKey:RecipientID"`
}

type AuditLog struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
