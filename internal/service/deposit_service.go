package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"ridepay/internal/config"
	"ridepay/internal/gateway/chapa"
	"ridepay/internal/infrastructure/lock"
	"ridepay/internal/model"
	"ridepay/internal/repository"
	"ridepay/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultVerifyTimeout = 10 * time.Second

type DepositService struct {
	db            *gorm.DB
	cfg           *config.Config
	log           logrus.FieldLogger
	gateway       PaymentGateway
	locker        lock.Provider
	notifier      Notifier
	wallets       *WalletService
	walletRepo    *repository.WalletRepository
	txRepo        *repository.TransactionRepository
	userRepo      *repository.UserRepository
	outboxRepo    *repository.OutboxRepository
	verifyTimeout time.Duration
	now           func() time.Time
}

// NewDepositService wires the deposit flow. notifier may be nil.
func NewDepositService(db *gorm.DB, cfg *config.Config, gateway PaymentGateway, locker lock.Provider, notifier Notifier, log logrus.FieldLogger) *DepositService {
	return &DepositService{
		db:            db,
		cfg:           cfg,
		log:           log.WithField("service", "deposit"),
		gateway:       gateway,
		locker:        locker,
		notifier:      notifier,
		wallets:       NewWalletService(db, cfg, log),
		walletRepo:    repository.NewWalletRepository(db),
		txRepo:        repository.NewTransactionRepository(db),
		userRepo:      repository.NewUserRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
		verifyTimeout: defaultVerifyTimeout,
		now:           time.Now,
	}
}

type DepositRequest struct {
	UserID         string
	Amount         decimal.Decimal
	PaymentMethod  string
	IdempotencyKey string
}

type DepositResult struct {
	TransactionID string              `json:"transaction_id"`
	ExternalRef   string              `json:"chapa_tx_ref"`
	CheckoutURL   string              `json:"chapa_checkout_url"`
	Amount        string              `json:"amount"`
	Status        model.PaymentStatus `json:"status"`
}

func (s *DepositService) methodAllowed(method string) bool {
	for _, m := range s.cfg.Wallet.AllowedPaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

func (s *DepositService) validate(req *DepositRequest) (int64, error) {
	cents, err := ToCents(req.Amount)
	if err != nil {
		return 0, err
	}
	if lo := s.cfg.Wallet.MinDepositCents; lo > 0 && cents < lo {
		return 0, validationError("minimum deposit is %s %s", FormatCents(lo), s.cfg.Wallet.Currency)
	}
	if hi := s.cfg.Wallet.MaxDepositCents; hi > 0 && cents > hi {
		return 0, validationError("maximum deposit is %s %s", FormatCents(hi), s.cfg.Wallet.Currency)
	}
	if !s.methodAllowed(req.PaymentMethod) {
		return 0, validationError("payment method %q is not supported", req.PaymentMethod)
	}
	if len(req.IdempotencyKey) > 64 {
		return 0, validationError("idempotency key longer than 64 characters")
	}
	return cents, nil
}

// InitiateDeposit records a pending deposit and opens a checkout for it.
// If the gateway call fails the pending row is kept; the reconciler settles
// it later.
func (s *DepositService) InitiateDeposit(ctx context.Context, req *DepositRequest) (*DepositResult, error) {
	cents, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	release, err := s.locker.Acquire(ctx, lock.DepositKey(req.UserID), uuid.NewString())
	if err != nil {
		s.log.WithFields(logrus.Fields{"user_id": req.UserID, "error": err}).Warn("deposit lock not acquired")
		return nil, ErrWalletBusy
	}
	defer release()

	wallet, err := s.walletRepo.GetOrCreate(ctx, nil, req.UserID, s.cfg.Wallet.Currency)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.txRepo.GetByIdempotencyKey(ctx, wallet.ID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if existing != nil {
			if existing.AmountCents != cents || existing.PaymentMethod != req.PaymentMethod {
				return nil, validationError("idempotency key already used for a different deposit")
			}
			return s.replay(ctx, user, existing)
		}
	}

	ref := idgen.GenerateDepositRef()
	trans := &model.WalletTransaction{
		WalletID:          wallet.ID,
		Type:              model.TransactionTypeDeposit,
		AmountCents:       cents,
		ExternalReference: &ref,
		ExternalStatus:    model.StatusPtr(model.PaymentStatusPending),
		PaymentMethod:     req.PaymentMethod,
		Description:       fmt.Sprintf("Wallet deposit via %s", req.PaymentMethod),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		trans.IdempotencyKey = &key
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.wallets.recompute(ctx, tx, wallet); err != nil {
			return err
		}
		// the deposit is not confirmed yet, so the balance does not move
		trans.BalanceAfterCents = wallet.BalanceCents
		if err := s.txRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return s.writeOutbox(ctx, tx, ref, model.WalletEvent{
			Event:    model.EventTransactionCreated,
			UserID:   req.UserID,
			WalletID: wallet.ID,
			Data:     transactionEventData(trans),
		})
	})
	if err != nil {
		return nil, err
	}

	logger := s.log.WithFields(logrus.Fields{
		"user_id": req.UserID,
		"tx_ref":  ref,
		"amount":  cents,
		"method":  req.PaymentMethod,
	})
	logger.Info("pending deposit recorded")
	s.notify(ctx, req.UserID, model.EventTransactionCreated, transactionEventData(trans))

	checkoutURL, err := s.openCheckout(ctx, user, trans)
	if err != nil {
		logger.WithError(err).Error("checkout initialization failed")
		return nil, fmt.Errorf("%w: %v", ErrPaymentInitialization, err)
	}

	return &DepositResult{
		TransactionID: trans.ID,
		ExternalRef:   ref,
		CheckoutURL:   checkoutURL,
		Amount:        FormatCents(cents),
		Status:        model.PaymentStatusPending,
	}, nil
}

// replay answers a retried request with the deposit it already created.
func (s *DepositService) replay(ctx context.Context, user *model.User, trans *model.WalletTransaction) (*DepositResult, error) {
	res := &DepositResult{
		TransactionID: trans.ID,
		ExternalRef:   derefString(trans.ExternalReference),
		CheckoutURL:   trans.CheckoutURL,
		Amount:        FormatCents(trans.AmountCents),
		Status:        trans.Status(),
	}
	if res.CheckoutURL != "" || trans.IsFinalized() {
		return res, nil
	}

	checkoutURL, err := s.openCheckout(ctx, user, trans)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentInitialization, err)
	}
	res.CheckoutURL = checkoutURL
	return res, nil
}

// returnURL adds tx_ref to the configured return URL, keeping any query it
// already carries.
func returnURL(base, ref string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("tx_ref", ref)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *DepositService) openCheckout(ctx context.Context, user *model.User, trans *model.WalletTransaction) (string, error) {
	payer := BuildPayer(user, s.cfg.Wallet.FallbackEmailDomain)
	ref := derefString(trans.ExternalReference)

	res, err := s.gateway.InitializePayment(ctx, chapa.InitializeRequest{
		Amount:      FromCents(trans.AmountCents),
		Currency:    s.cfg.Wallet.Currency,
		Email:       payer.Email,
		FirstName:   payer.FirstName,
		LastName:    payer.LastName,
		PhoneNumber: payer.Phone,
		TxRef:       ref,
		CallbackURL: s.cfg.Chapa.CallbackURL,
		ReturnURL:   returnURL(s.cfg.Chapa.ReturnURL, ref),
		Customization: chapa.Customization{
			Title:       "Wallet Top-up",
			Description: "Deposit to wallet",
		},
	})
	if err != nil {
		return "", err
	}

	if err := s.txRepo.SetCheckoutURL(ctx, trans.ID, res.CheckoutURL); err != nil {
		s.log.WithFields(logrus.Fields{"tx_ref": ref, "error": err}).Warn("checkout url not stored")
	}
	trans.CheckoutURL = res.CheckoutURL
	return res.CheckoutURL, nil
}

// Signatures carries the webhook signature headers as received.
type Signatures struct {
	Chapa  string
	XChapa string
}

type WebhookResult struct {
	TransactionID    string              `json:"transaction_id"`
	Reference        string              `json:"reference"`
	Status           model.PaymentStatus `json:"status"`
	BalanceCents     int64               `json:"balance_cents"`
	AlreadyProcessed bool                `json:"already_processed"`
}

// HandleWebhook authenticates a gateway callback and settles the deposit it
// refers to. Redelivery of an already settled reference is a no-op that
// returns the stored outcome.
func (s *DepositService) HandleWebhook(ctx context.Context, body []byte, sig Signatures) (*WebhookResult, error) {
	if err := chapa.VerifySignature(s.cfg.Chapa.SigningSecret(), body, sig.Chapa, sig.XChapa); err != nil {
		s.log.Warn("webhook rejected: bad signature")
		return nil, ErrInvalidSignature
	}

	ev, err := chapa.ParseWebhook(body)
	if err != nil {
		if errors.Is(err, chapa.ErrMissingReference) {
			return nil, ErrMissingReference
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	claimed := model.PaymentStatusFailed
	if ev.Succeeded() {
		claimed = model.PaymentStatusSuccess
	}
	ref := ev.Ref()

	s.log.WithFields(logrus.Fields{"tx_ref": ref, "claimed": claimed, "event": ev.Event}).Info("webhook received")

	return s.settle(ctx, ref, func(ctx context.Context, trans *model.WalletTransaction) (model.PaymentStatus, bool) {
		verified, err := s.verify(ctx, ref)
		if err != nil {
			return claimed, true
		}
		if !verified.IsTerminal() {
			// the reconciler picks it up once the gateway settles
			s.log.WithFields(logrus.Fields{"tx_ref": ref, "claimed": claimed, "verified": verified}).
				Warn("webhook claim not confirmed by gateway, deposit left pending")
			return "", false
		}
		if verified != claimed {
			s.log.WithFields(logrus.Fields{"tx_ref": ref, "claimed": claimed, "verified": verified}).
				Warn("webhook status overridden by gateway")
		}
		return verified, true
	})
}

// verify asks the gateway for the payment's status. Anything the gateway
// reports other than success or failed maps to pending, which never credits.
// err is set only when the gateway could not be asked.
func (s *DepositService) verify(ctx context.Context, ref string) (model.PaymentStatus, error) {
	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	res, err := s.gateway.VerifyPayment(vctx, ref)
	if err != nil {
		s.log.WithFields(logrus.Fields{"tx_ref": ref, "error": err}).Warn("gateway verification failed")
		return "", err
	}
	switch res.Status {
	case chapa.StatusSuccess:
		return model.PaymentStatusSuccess, nil
	case chapa.StatusFailed:
		return model.PaymentStatusFailed, nil
	}
	return model.PaymentStatusPending, nil
}

// decideFunc picks the terminal status for a locked pending deposit. false
// leaves it pending.
type decideFunc func(ctx context.Context, trans *model.WalletTransaction) (model.PaymentStatus, bool)

// settle finalizes the deposit for ref in a single DB transaction: the row
// is locked, terminal rows short-circuit, then status, ledger balance and
// cached balance are written together.
func (s *DepositService) settle(ctx context.Context, ref string, decide decideFunc) (*WebhookResult, error) {
	var (
		result  *WebhookResult
		userID  string
		changed bool
		trans   *model.WalletTransaction
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		trans, err = s.txRepo.GetByExternalRefForUpdate(ctx, tx, ref)
		if err != nil {
			return err
		}
		if trans.Type != model.TransactionTypeDeposit {
			return ErrTransactionNotFound
		}

		if trans.IsFinalized() {
			result = &WebhookResult{
				TransactionID:    trans.ID,
				Reference:        ref,
				Status:           trans.Status(),
				BalanceCents:     trans.BalanceAfterCents,
				AlreadyProcessed: true,
			}
			return nil
		}

		// decide may call the gateway; the wallet row is locked only after it.
		status, ok := decide(ctx, trans)
		if !ok {
			wallet, err := s.walletRepo.GetByID(ctx, tx, trans.WalletID)
			if err != nil {
				return fmt.Errorf("load wallet: %w", err)
			}
			result = &WebhookResult{
				TransactionID: trans.ID,
				Reference:     ref,
				Status:        model.PaymentStatusPending,
				BalanceCents:  wallet.BalanceCents,
			}
			return nil
		}

		wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, trans.WalletID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		userID = wallet.UserID

		processedAt := s.now()
		if err := s.txRepo.Finalize(ctx, tx, trans.ID, status, processedAt); err != nil {
			return fmt.Errorf("finalize transaction: %w", err)
		}
		if err := s.wallets.recompute(ctx, tx, wallet); err != nil {
			return err
		}
		if err := s.txRepo.SetBalanceAfter(ctx, tx, trans.ID, wallet.BalanceCents); err != nil {
			return fmt.Errorf("set balance after: %w", err)
		}

		trans.ExternalStatus = model.StatusPtr(status)
		trans.BalanceAfterCents = wallet.BalanceCents
		trans.ProcessedAt = &processedAt
		changed = true

		result = &WebhookResult{
			TransactionID: trans.ID,
			Reference:     ref,
			Status:        status,
			BalanceCents:  wallet.BalanceCents,
		}
		return s.writeOutbox(ctx, tx, ref, model.WalletEvent{
			Event:    model.EventTransactionUpdated,
			UserID:   wallet.UserID,
			WalletID: wallet.ID,
			Data:     transactionEventData(trans),
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		s.log.WithFields(logrus.Fields{"tx_ref": ref, "error": err}).Error("deposit settlement failed")
		return nil, err
	}

	if changed {
		s.log.WithFields(logrus.Fields{
			"tx_ref":        ref,
			"user_id":       userID,
			"status":        result.Status,
			"balance_cents": result.BalanceCents,
		}).Info("deposit settled")
		s.notify(ctx, userID, model.EventTransactionUpdated, transactionEventData(trans))
		s.notify(ctx, userID, model.EventBalanceUpdated, map[string]interface{}{
			"balance_cents": result.BalanceCents,
			"balance":       FormatCents(result.BalanceCents),
			"currency":      s.cfg.Wallet.Currency,
		})
	}
	return result, nil
}

// ReconcileSummary counts what one reconciliation pass did.
type ReconcileSummary struct {
	Checked   int
	Succeeded int
	Failed    int
	Expired   int
}

// ReconcilePending re-verifies deposits left pending since before olderThan.
// Gateway outcomes settle them like a webhook would; deposits older than the
// configured expiry that the gateway still cannot confirm are marked failed.
func (s *DepositService) ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (*ReconcileSummary, error) {
	pending, err := s.txRepo.ListPendingDeposits(ctx, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending deposits: %w", err)
	}

	summary := &ReconcileSummary{}
	expiry := s.cfg.Wallet.PendingDepositExpiry
	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		ref := derefString(p.ExternalReference)
		expired := false
		res, err := s.settle(ctx, ref, func(ctx context.Context, trans *model.WalletTransaction) (model.PaymentStatus, bool) {
			if status, err := s.verify(ctx, ref); err == nil && status.IsTerminal() {
				return status, true
			}
			if expiry > 0 && s.now().Sub(trans.CreatedAt) > expiry {
				expired = true
				return model.PaymentStatusFailed, true
			}
			return "", false
		})
		summary.Checked++
		if err != nil {
			s.log.WithFields(logrus.Fields{"tx_ref": ref, "error": err}).Warn("reconcile failed")
			continue
		}
		if res.AlreadyProcessed {
			continue
		}
		switch {
		case expired:
			summary.Expired++
		case res.Status == model.PaymentStatusSuccess:
			summary.Succeeded++
		case res.Status == model.PaymentStatusFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *DepositService) writeOutbox(ctx context.Context, tx *gorm.DB, key string, ev model.WalletEvent) error {
	if !s.cfg.Kafka.Enabled {
		return nil
	}
	msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.WalletEvents, key, ev)
	if err != nil {
		return err
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}

func (s *DepositService) notify(ctx context.Context, userID, event string, payload interface{}) {
	notifyBestEffort(ctx, s.notifier, s.log, userID, event, payload)
}

func notifyBestEffort(ctx context.Context, n Notifier, log logrus.FieldLogger, userID, event string, payload interface{}) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, userID, event, payload); err != nil {
		log.WithFields(logrus.Fields{"user_id": userID, "event": event, "error": err}).Warn("notification dropped")
	}
}

func transactionEventData(t *model.WalletTransaction) map[string]interface{} {
	data := map[string]interface{}{
		"transaction_id":      t.ID,
		"type":                t.Type,
		"amount_cents":        t.AmountCents,
		"balance_after_cents": t.BalanceAfterCents,
		"status":              t.Status(),
		"payment_method":      t.PaymentMethod,
	}
	if t.ExternalReference != nil {
		data["external_reference"] = *t.ExternalReference
	}
	return data
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
