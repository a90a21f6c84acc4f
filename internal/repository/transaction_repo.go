package repository

import (
	"context"
	"errors"
	"time"

	"ridepay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error {
	return pick(r.db, tx).WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByExternalRef(ctx context.Context, tx *gorm.DB, ref string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := pick(r.db, tx).WithContext(ctx).Where("external_reference = ?", ref).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// GetByExternalRefForUpdate locks the row so concurrent webhook deliveries
// for the same reference are serialised.
func (r *TransactionRepository) GetByExternalRefForUpdate(ctx context.Context, tx *gorm.DB, ref string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_reference = ?", ref).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// GetByIdempotencyKey returns nil, nil when no row carries the key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, walletID, key string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND idempotency_key = ?", walletID, key).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// Finalize moves a pending (or status-less) transaction to a terminal status.
// Rows that are already terminal are left untouched and ErrAlreadyFinalized
// is returned.
func (r *TransactionRepository) Finalize(ctx context.Context, tx *gorm.DB, id string, status model.PaymentStatus, processedAt time.Time) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("id = ? AND external_status = ?", id, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"external_status": status,
			"processed_at":    processedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

func (r *TransactionRepository) SetBalanceAfter(ctx context.Context, tx *gorm.DB, id string, balanceAfterCents int64) error {
	return pick(r.db, tx).WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("id = ?", id).
		Update("balance_after_cents", balanceAfterCents).Error
}

func (r *TransactionRepository) SetCheckoutURL(ctx context.Context, id, checkoutURL string) error {
	return r.db.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("id = ?", id).
		Update("checkout_url", checkoutURL).Error
}

// ListByWallet pages through a wallet's ledger, newest first. A nil txType
// returns every type.
func (r *TransactionRepository) ListByWallet(ctx context.Context, walletID string, txType *model.TransactionType, page, limit int) ([]*model.WalletTransaction, int64, error) {
	var transactions []*model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("wallet_id = ?", walletID)
	if txType != nil {
		query = query.Where("type = ?", *txType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&transactions).Error

	return transactions, total, err
}

// ListPendingDeposits returns deposits still pending that were created
// before the given time, oldest first.
func (r *TransactionRepository) ListPendingDeposits(ctx context.Context, before time.Time, limit int) ([]*model.WalletTransaction, error) {
	var transactions []*model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND external_status = ? AND external_reference IS NOT NULL AND created_at < ?",
			model.TransactionTypeDeposit, model.PaymentStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}
