package service

import (
	"github.com/shopspring/decimal"
)

var maxAmount = decimal.NewFromInt(1_000_000_000)

// ToCents converts a positive ETB amount with at most two decimals to cents.
func ToCents(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, validationError("amount must be greater than 0")
	}
	if !amount.Equal(amount.Round(2)) {
		return 0, validationError("amount must have at most 2 decimal places")
	}
	if amount.GreaterThan(maxAmount) {
		return 0, validationError("amount too large")
	}
	return amount.Shift(2).IntPart(), nil
}

// FromCents renders cents as an ETB decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatCents renders cents as a fixed two-decimal ETB string.
func FormatCents(cents int64) string {
	return FromCents(cents).StringFixed(2)
}
