package repository

import (
	"context"
	"errors"

	"ridepay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyFinalized    = errors.New("transaction already finalized")
)

// pick returns tx when the caller is inside a transaction, else the pool.
func pick(db, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return db
	}
	return tx
}

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*model.WalletAccount, error) {
	var wallet model.WalletAccount
	err := pick(r.db, tx).WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *WalletRepository) GetByID(ctx context.Context, tx *gorm.DB, walletID string) (*model.WalletAccount, error) {
	var wallet model.WalletAccount
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", walletID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetByUserIDForUpdate reads the wallet with SELECT ... FOR UPDATE. tx must
// be an open transaction.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*model.WalletAccount, error) {
	var wallet model.WalletAccount
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *WalletRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, walletID string) (*model.WalletAccount, error) {
	var wallet model.WalletAccount
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", walletID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetOrCreate returns the user's wallet, inserting an empty one first if
// needed. Concurrent callers converge on the same row through the unique
// user_id index. Call it outside a transaction: under MySQL REPEATABLE READ
// the re-read inside one cannot see a row another caller just committed.
func (r *WalletRepository) GetOrCreate(ctx context.Context, tx *gorm.DB, userID, currency string) (*model.WalletAccount, error) {
	wallet, err := r.GetByUserID(ctx, tx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	newWallet := &model.WalletAccount{
		UserID:       userID,
		BalanceCents: 0,
		Currency:     currency,
	}
	err = pick(r.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newWallet).Error
	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, tx, userID)
}

type ledgerRow struct {
	Type           string
	ExternalStatus *string
	TotalCents     int64
}

// LedgerSums aggregates the wallet's ledger by (type, external_status).
func (r *WalletRepository) LedgerSums(ctx context.Context, tx *gorm.DB, walletID string) ([]model.LedgerSum, error) {
	var rows []ledgerRow
	err := pick(r.db, tx).WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Select("type, external_status, COALESCE(SUM(amount_cents), 0) AS total_cents").
		Where("wallet_id = ?", walletID).
		Group("type, external_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sums := make([]model.LedgerSum, 0, len(rows))
	for _, row := range rows {
		s := model.LedgerSum{Type: model.TransactionType(row.Type), TotalCents: row.TotalCents}
		if row.ExternalStatus != nil {
			s.ExternalStatus = model.StatusPtr(model.PaymentStatus(*row.ExternalStatus))
		}
		sums = append(sums, s)
	}
	return sums, nil
}

func (r *WalletRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, walletID string, balanceCents int64) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.WalletAccount{}).
		Where("id = ?", walletID).
		Update("balance_cents", balanceCents)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}
