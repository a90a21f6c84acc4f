package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"ridepay/internal/config"
	"ridepay/internal/model"
	"ridepay/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type WithdrawalService struct {
	db             *gorm.DB
	cfg            *config.Config
	log            logrus.FieldLogger
	notifier       Notifier
	wallets        *WalletService
	walletRepo     *repository.WalletRepository
	withdrawalRepo *repository.WithdrawalRepository
	outboxRepo     *repository.OutboxRepository
}

// NewWithdrawalService wires withdrawal submission. notifier may be nil.
func NewWithdrawalService(db *gorm.DB, cfg *config.Config, notifier Notifier, log logrus.FieldLogger) *WithdrawalService {
	return &WithdrawalService{
		db:             db,
		cfg:            cfg,
		log:            log.WithField("service", "withdrawal"),
		notifier:       notifier,
		wallets:        NewWalletService(db, cfg, log),
		walletRepo:     repository.NewWalletRepository(db),
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
	}
}

type WithdrawalInput struct {
	UserID            string
	Amount            decimal.Decimal
	BankName          string
	AccountNumber     string
	AccountHolderName string
	Notes             string
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func (in *WithdrawalInput) normalize() (int64, error) {
	cents, err := ToCents(in.Amount)
	if err != nil {
		return 0, err
	}
	in.BankName = strings.TrimSpace(in.BankName)
	in.AccountNumber = strings.ReplaceAll(strings.TrimSpace(in.AccountNumber), " ", "")
	in.AccountHolderName = strings.TrimSpace(in.AccountHolderName)
	in.Notes = strings.TrimSpace(in.Notes)

	switch {
	case in.BankName == "" || utf8.RuneCountInString(in.BankName) > 64:
		return 0, validationError("bank_name is required and at most 64 characters")
	case !isDigits(in.AccountNumber) || len(in.AccountNumber) < 6 || len(in.AccountNumber) > 20:
		return 0, validationError("account_number must be 6 to 20 digits")
	case in.AccountHolderName == "" || utf8.RuneCountInString(in.AccountHolderName) > 128:
		return 0, validationError("account_holder_name is required and at most 128 characters")
	case utf8.RuneCountInString(in.Notes) > 512:
		return 0, validationError("notes must be at most 512 characters")
	}
	return cents, nil
}

// SubmitWithdrawal files a pending withdrawal request if the user's available
// balance covers it. Available balance is the ledger balance minus every
// request still pending; both are read under the wallet row lock so
// concurrent submissions cannot overdraw.
func (s *WithdrawalService) SubmitWithdrawal(ctx context.Context, in *WithdrawalInput) (*model.WithdrawalRequest, error) {
	cents, err := in.normalize()
	if err != nil {
		return nil, err
	}

	logger := s.log.WithFields(logrus.Fields{"user_id": in.UserID, "amount": cents})

	request := &model.WithdrawalRequest{
		UserID:            in.UserID,
		AmountCents:       cents,
		BankName:          in.BankName,
		AccountNumber:     in.AccountNumber,
		AccountHolderName: in.AccountHolderName,
		Notes:             in.Notes,
		Status:            model.WithdrawalStatusPending,
	}

	if _, err := s.walletRepo.GetOrCreate(ctx, nil, in.UserID, s.cfg.Wallet.Currency); err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	// the row lock comes first so every read below sees committed requests
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, in.UserID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if err := s.wallets.recompute(ctx, tx, wallet); err != nil {
			return err
		}
		reserved, err := s.withdrawalRepo.SumPending(ctx, tx, in.UserID)
		if err != nil {
			return fmt.Errorf("sum pending withdrawals: %w", err)
		}

		available := wallet.BalanceCents - reserved
		if available < cents {
			logger.WithFields(logrus.Fields{
				"balance_cents":  wallet.BalanceCents,
				"reserved_cents": reserved,
			}).Info("withdrawal rejected: insufficient balance")
			return ErrInsufficientBalance
		}

		if err := s.withdrawalRepo.Create(ctx, tx, request); err != nil {
			return fmt.Errorf("create withdrawal request: %w", err)
		}

		if !s.cfg.Kafka.Enabled {
			return nil
		}
		msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.WalletEvents, request.ID, model.WalletEvent{
			Event:    model.EventWithdrawalCreated,
			UserID:   in.UserID,
			WalletID: wallet.ID,
			Data:     withdrawalEventData(request),
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, tx, msg)
	})
	if err != nil {
		return nil, err
	}

	logger.WithField("request_id", request.ID).Info("withdrawal request submitted")
	notifyBestEffort(ctx, s.notifier, s.log, in.UserID, model.EventWithdrawalCreated, withdrawalEventData(request))
	return request, nil
}

func (s *WithdrawalService) ListWithdrawals(ctx context.Context, userID string) ([]*model.WithdrawalRequest, error) {
	items, err := s.withdrawalRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	if items == nil {
		items = []*model.WithdrawalRequest{}
	}
	return items, nil
}

func withdrawalEventData(r *model.WithdrawalRequest) map[string]interface{} {
	return map[string]interface{}{
		"request_id":   r.ID,
		"amount_cents": r.AmountCents,
		"status":       r.Status,
	}
}
