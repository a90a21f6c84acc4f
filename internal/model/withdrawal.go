package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

// WithdrawalRequest is a payout the user asked for. No ledger entry exists
// until an operator approves it.
type WithdrawalRequest struct {
	ID                string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID            string           `gorm:"type:varchar(36);index;not null" json:"user_id"`
	AmountCents       int64            `gorm:"not null" json:"amount_cents"`
	BankName          string           `gorm:"type:varchar(64);not null" json:"bank_name"`
	AccountNumber     string           `gorm:"type:varchar(32);not null" json:"account_number"`
	AccountHolderName string           `gorm:"type:varchar(128);not null" json:"account_holder_name"`
	Notes             string           `gorm:"type:varchar(512)" json:"notes,omitempty"`
	Status            WithdrawalStatus `gorm:"type:varchar(16);index;not null;default:pending" json:"status"`
	CreatedAt         time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

func (w *WithdrawalRequest) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
