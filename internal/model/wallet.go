package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WalletAccount holds one user's wallet. BalanceCents is a cache of the
// ledger sum and is rewritten every time the balance is recomputed.
type WalletAccount struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	BalanceCents int64     `gorm:"not null;default:0" json:"balance_cents"`
	Currency     string    `gorm:"type:varchar(8);not null;default:ETB" json:"currency"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WalletAccount) TableName() string {
	return "wallet_accounts"
}

func (w *WalletAccount) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

// User is the subset of the identity service's user row the wallet reads.
type User struct {
	ID          string `gorm:"type:varchar(36);primaryKey" json:"id"`
	FullName    string `gorm:"type:varchar(128)" json:"full_name"`
	PhoneNumber string `gorm:"type:varchar(32)" json:"phone_number"`
	Email       string `gorm:"type:varchar(128)" json:"email"`
}

func (User) TableName() string {
	return "users"
}
