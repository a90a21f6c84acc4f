package service

import (
	"errors"
	"fmt"

	"ridepay/internal/gateway/chapa"
	"ridepay/internal/repository"
)

var (
	ErrValidation            = errors.New("invalid request")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrPaymentInitialization = errors.New("failed to initialize payment")
	ErrBalanceUnavailable    = errors.New("failed to fetch balance")
	ErrInvalidPayload        = errors.New("invalid webhook payload")
	ErrWalletBusy            = errors.New("another deposit is being processed, retry shortly")

	ErrUserNotFound        = repository.ErrUserNotFound
	ErrWalletNotFound      = repository.ErrWalletNotFound
	ErrTransactionNotFound = repository.ErrTransactionNotFound
	ErrInvalidSignature    = chapa.ErrInvalidSignature
	ErrMissingReference    = chapa.ErrMissingReference
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
