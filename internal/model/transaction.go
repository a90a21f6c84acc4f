package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionType is the kind of ledger entry.
type TransactionType string

const (
	TransactionTypeDeposit      TransactionType = "deposit"
	TransactionTypeWithdrawal   TransactionType = "withdrawal"
	TransactionTypeTripPayout   TransactionType = "trip_payout"
	TransactionTypeTripEarnings TransactionType = "trip_earnings"
	TransactionTypeBonus        TransactionType = "bonus"
	TransactionTypeRefund       TransactionType = "refund"
	TransactionTypeAdjustment   TransactionType = "adjustment"
	TransactionTypeTripPayment  TransactionType = "trip_payment"
)

var transactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeWithdrawal,
	TransactionTypeTripPayout,
	TransactionTypeTripEarnings,
	TransactionTypeBonus,
	TransactionTypeRefund,
	TransactionTypeAdjustment,
	TransactionTypeTripPayment,
}

func ParseTransactionType(s string) (TransactionType, error) {
	for _, t := range transactionTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// PaymentStatus is the gateway-side state of a transaction. A nil
// *PaymentStatus on a row marks a legacy entry written before statuses
// were tracked.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusFailed:
		return true
	case PaymentStatusPending:
		return false
	}
	return false
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// StatusPtr is a helper for assigning enum values to nullable columns.
func StatusPtr(s PaymentStatus) *PaymentStatus {
	return &s
}

// WalletTransaction is one ledger entry. AmountCents is always a positive
// magnitude; the sign comes from Type.
//
// Once ExternalStatus is terminal the row must not change again.
type WalletTransaction struct {
	ID                string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	WalletID          string          `gorm:"type:varchar(36);index;uniqueIndex:idx_wallet_idempotency,priority:1;not null" json:"wallet_id"`
	Type              TransactionType `gorm:"type:varchar(20);index;not null" json:"type"`
	AmountCents       int64           `gorm:"not null" json:"amount_cents"`
	BalanceAfterCents int64           `gorm:"not null;default:0" json:"balance_after_cents"`
	ExternalReference *string         `gorm:"type:varchar(64);uniqueIndex" json:"external_reference,omitempty"`
	ExternalStatus    *PaymentStatus  `gorm:"type:varchar(16);index" json:"external_status,omitempty"`
	PaymentMethod     string          `gorm:"type:varchar(32)" json:"payment_method,omitempty"`
	Description       string          `gorm:"type:varchar(256)" json:"description,omitempty"`
	IdempotencyKey    *string         `gorm:"type:varchar(64);uniqueIndex:idx_wallet_idempotency,priority:2" json:"-"`
	CheckoutURL       string          `gorm:"type:varchar(512)" json:"-"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Status returns the external status, or "" for legacy rows.
func (t *WalletTransaction) Status() PaymentStatus {
	if t.ExternalStatus == nil {
		return ""
	}
	return *t.ExternalStatus
}

// IsFinalized reports whether the transaction can no longer change status.
// Legacy rows without an external status already count as settled.
func (t *WalletTransaction) IsFinalized() bool {
	return t.ExternalStatus == nil || t.ExternalStatus.IsTerminal()
}

// LedgerSum is one aggregated bucket of a wallet's ledger.
type LedgerSum struct {
	Type           TransactionType
	ExternalStatus *PaymentStatus
	TotalCents     int64
}

// ComputeBalance folds aggregated ledger buckets into a balance.
//
//	deposits (success or legacy null)            +
//	withdrawal, trip_payment                     -
//	trip_payout, trip_earnings, bonus,
//	refund, adjustment                           +
//
// Pending and failed deposits contribute nothing.
func ComputeBalance(sums []LedgerSum) int64 {
	var balance int64
	for _, s := range sums {
		switch s.Type {
		case TransactionTypeDeposit:
			if s.ExternalStatus == nil || *s.ExternalStatus == PaymentStatusSuccess {
				balance += s.TotalCents
			}
		case TransactionTypeWithdrawal, TransactionTypeTripPayment:
			balance -= s.TotalCents
		case TransactionTypeTripPayout, TransactionTypeTripEarnings,
			TransactionTypeBonus, TransactionTypeRefund, TransactionTypeAdjustment:
			balance += s.TotalCents
		}
	}
	return balance
}
