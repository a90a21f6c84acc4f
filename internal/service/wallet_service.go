package service

import (
	"context"
	"fmt"
	"time"

	"ridepay/internal/config"
	"ridepay/internal/model"
	"ridepay/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type WalletService struct {
	db          *gorm.DB
	cfg         *config.Config
	log         logrus.FieldLogger
	walletRepo  *repository.WalletRepository
	transaction *repository.TransactionRepository
}

func NewWalletService(db *gorm.DB, cfg *config.Config, log logrus.FieldLogger) *WalletService {
	return &WalletService{
		db:          db,
		cfg:         cfg,
		log:         log.WithField("service", "wallet"),
		walletRepo:  repository.NewWalletRepository(db),
		transaction: repository.NewTransactionRepository(db),
	}
}

type BalanceView struct {
	WalletID     string    `json:"wallet_id"`
	BalanceCents int64     `json:"balance_cents"`
	Balance      string    `json:"balance"`
	Currency     string    `json:"currency"`
	LastUpdated  time.Time `json:"last_updated"`
}

func newBalanceView(w *model.WalletAccount) *BalanceView {
	return &BalanceView{
		WalletID:     w.ID,
		BalanceCents: w.BalanceCents,
		Balance:      FormatCents(w.BalanceCents),
		Currency:     w.Currency,
		LastUpdated:  w.UpdatedAt,
	}
}

// recompute derives the wallet balance from its ledger and writes it back to
// the cached column when it changed. wallet is updated in place.
func (s *WalletService) recompute(ctx context.Context, tx *gorm.DB, wallet *model.WalletAccount) error {
	sums, err := s.walletRepo.LedgerSums(ctx, tx, wallet.ID)
	if err != nil {
		return fmt.Errorf("sum ledger: %w", err)
	}
	balance := model.ComputeBalance(sums)
	if balance == wallet.BalanceCents {
		return nil
	}
	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, balance); err != nil {
		return fmt.Errorf("update cached balance: %w", err)
	}
	wallet.BalanceCents = balance
	wallet.UpdatedAt = time.Now()
	return nil
}

// GetBalance returns the user's balance, creating an empty wallet on first
// use.
func (s *WalletService) GetBalance(ctx context.Context, userID string) (*BalanceView, error) {
	wallet, err := s.walletRepo.GetOrCreate(ctx, nil, userID, s.cfg.Wallet.Currency)
	if err == nil {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.recompute(ctx, tx, wallet)
		})
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("balance lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}
	return newBalanceView(wallet), nil
}

type TransactionPage struct {
	Transactions []*model.WalletTransaction `json:"transactions"`
	Total        int64                      `json:"total"`
	Page         int                        `json:"page"`
	Limit        int                        `json:"limit"`
}

// ClampPage normalises pagination input.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// ListTransactions pages through the user's ledger, newest first. An empty
// txType lists every type.
func (s *WalletService) ListTransactions(ctx context.Context, userID string, page, limit int, txType string) (*TransactionPage, error) {
	var filter *model.TransactionType
	if txType != "" {
		t, err := model.ParseTransactionType(txType)
		if err != nil {
			return nil, validationError("%v", err)
		}
		filter = &t
	}
	page, limit = ClampPage(page, limit)

	wallet, err := s.walletRepo.GetOrCreate(ctx, nil, userID, s.cfg.Wallet.Currency)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	items, total, err := s.transaction.ListByWallet(ctx, wallet.ID, filter, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if items == nil {
		items = []*model.WalletTransaction{}
	}
	return &TransactionPage{Transactions: items, Total: total, Page: page, Limit: limit}, nil
}
