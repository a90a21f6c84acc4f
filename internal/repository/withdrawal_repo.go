package repository

import (
	"context"

	"ridepay/internal/model"

	"gorm.io/gorm"
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, req *model.WithdrawalRequest) error {
	return pick(r.db, tx).WithContext(ctx).Create(req).Error
}

// SumPending totals the user's withdrawal requests still awaiting approval.
func (r *WithdrawalRepository) SumPending(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	var total int64
	err := pick(r.db, tx).WithContext(ctx).
		Model(&model.WithdrawalRequest{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("user_id = ? AND status = ?", userID, model.WithdrawalStatusPending).
		Scan(&total).Error
	return total, err
}

func (r *WithdrawalRepository) ListByUserID(ctx context.Context, userID string) ([]*model.WithdrawalRequest, error) {
	var requests []*model.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}
