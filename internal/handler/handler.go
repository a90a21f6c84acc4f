package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"ridepay/internal/config"
	"ridepay/internal/notify"
	"ridepay/internal/service"
	"ridepay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// EventSource hands out a per-user stream of wallet events.
type EventSource interface {
	Subscribe(ctx context.Context, userID string) (<-chan notify.Message, func())
}

type Handler struct {
	cfg         *config.Config
	log         logrus.FieldLogger
	wallets     *service.WalletService
	deposits    *service.DepositService
	withdrawals *service.WithdrawalService
	events      EventSource
}

func NewHandler(cfg *config.Config, log logrus.FieldLogger, wallets *service.WalletService, deposits *service.DepositService, withdrawals *service.WithdrawalService, events EventSource) *Handler {
	return &Handler{
		cfg:         cfg,
		log:         log.WithField("component", "http"),
		wallets:     wallets,
		deposits:    deposits,
		withdrawals: withdrawals,
		events:      events,
	}
}

// fail maps a service error onto the response envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, service.ErrWalletNotFound):
		response.BusinessError(c, http.StatusNotFound, response.CodeAccountNotFound, "wallet not found")
	case errors.Is(err, service.ErrTransactionNotFound):
		response.NotFound(c, "transaction not found")
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, http.StatusUnprocessableEntity, response.CodeBalanceNotEnough, "insufficient balance")
	case errors.Is(err, service.ErrPaymentInitialization):
		response.BusinessError(c, http.StatusBadGateway, response.CodePaymentFailed, service.ErrPaymentInitialization.Error())
	case errors.Is(err, service.ErrWalletBusy):
		response.BusinessError(c, http.StatusConflict, response.CodeDuplicateRequest, service.ErrWalletBusy.Error())
	case errors.Is(err, service.ErrBalanceUnavailable):
		response.Error(c, http.StatusInternalServerError, response.CodeServerError, service.ErrBalanceUnavailable.Error())
	default:
		h.log.WithFields(logrus.Fields{"path": c.FullPath(), "error": err}).Error("unhandled error")
		response.ServerError(c)
	}
}

// GetBalance GET /wallet/balance
func (h *Handler) GetBalance(c *gin.Context) {
	view, err := h.wallets.GetBalance(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, view)
}

// ListTransactions GET /wallet/transactions?page=1&limit=20&type=deposit
func (h *Handler) ListTransactions(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		response.ParamError(c, "page must be a number")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		response.ParamError(c, "limit must be a number")
		return
	}

	result, err := h.wallets.ListTransactions(c.Request.Context(), currentUserID(c), page, limit, c.Query("type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

type DepositRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" binding:"required,payment_method"`
}

// Deposit POST /wallet/deposit
//
// An Idempotency-Key header makes retries return the original deposit.
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, bindingMessage(err))
		return
	}

	result, err := h.deposits.InitiateDeposit(c.Request.Context(), &service.DepositRequest{
		UserID:         currentUserID(c),
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

type WithdrawRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	BankName          string          `json:"bank_name" binding:"required"`
	AccountNumber     string          `json:"account_number" binding:"required"`
	AccountHolderName string          `json:"account_holder_name" binding:"required"`
	Notes             string          `json:"notes"`
}

// Withdraw POST /wallet/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, bindingMessage(err))
		return
	}

	request, err := h.withdrawals.SubmitWithdrawal(c.Request.Context(), &service.WithdrawalInput{
		UserID:            currentUserID(c),
		Amount:            req.Amount,
		BankName:          req.BankName,
		AccountNumber:     req.AccountNumber,
		AccountHolderName: req.AccountHolderName,
		Notes:             req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{
		"request_id": request.ID,
		"message":    "withdrawal request submitted and awaiting approval",
	})
}

// ListWithdrawals GET /wallet/withdraw
func (h *Handler) ListWithdrawals(c *gin.Context) {
	items, err := h.withdrawals.ListWithdrawals(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"requests": items})
}
