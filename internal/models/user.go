// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	UserType     UserType   `json:"user_type" gorm:"type:varchar(20);not null"`
	Status       UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	ProfileData  JSONB      `json:"profile_data" gorm:"type:jsonb"`

	// Seller settlement fields. PendingBalance holds earnings in escrow
	// until the holding window elapses; Balance is withdrawable.
	Balance        float64 `json:"balance" gorm:"type:decimal(12,2);default:0"`
	PendingBalance float64 `json:"pending_balance" gorm:"type:decimal(12,2);default:0"`

	// Payout details for gateway transfers.
	PayoutRecipient    string `json:"-" gorm:"size:100"`
	BankAccountNumber  string `json:"-" gorm:"size:20"`
	BankCode           string `json:"-" gorm:"size:10"`
	TransactionPINHash string `json:"-" gorm:"size:255"`

	// Referral: a referred buyer's settled purchases earn the referrer a reward.
	ReferredBy *uuid.UUID `json:"referred_by,omitempty" gorm:"type:uuid;index"`

	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	LastLoginAt     *time.Time `json:"last_login_at"`

	// Relationships
	Products     []Product     `json:"products,omitempty" gorm:"foreignKey:SellerID"`
	Orders       []Order       `json:"orders,omitempty" gorm:"foreignKey:UserID"`
	Transactions []Transaction `json:"transactions,omitempty" gorm:"foreignKey:UserID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

func (u *User) SetTransactionPIN(pin string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.TransactionPINHash = string(hashed)
	return nil
}

func (u *User) CheckTransactionPIN(pin string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.TransactionPINHash), []byte(pin))
}
