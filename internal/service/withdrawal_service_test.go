package service

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWithdrawal() WithdrawalInput {
	return WithdrawalInput{
		UserID:            "u-1",
		Amount:            decimal.RequireFromString("50"),
		BankName:          " Commercial Bank of Ethiopia ",
		AccountNumber:     "1000 2345 6789",
		AccountHolderName: "Abebe Kebede",
	}
}

func TestWithdrawalInputNormalize(t *testing.T) {
	in := validWithdrawal()
	cents, err := in.normalize()
	require.NoError(t, err)
	assert.Equal(t, int64(5000), cents)
	assert.Equal(t, "Commercial Bank of Ethiopia", in.BankName)
	assert.Equal(t, "100023456789", in.AccountNumber)
}

func TestWithdrawalInputRejects(t *testing.T) {
	tests := map[string]func(*WithdrawalInput){
		"zero amount":        func(in *WithdrawalInput) { in.Amount = decimal.Zero },
		"missing bank":       func(in *WithdrawalInput) { in.BankName = "  " },
		"short account":      func(in *WithdrawalInput) { in.AccountNumber = "12345" },
		"long account":       func(in *WithdrawalInput) { in.AccountNumber = strings.Repeat("1", 21) },
		"letters in account": func(in *WithdrawalInput) { in.AccountNumber = "12345a789" },
		"missing holder":     func(in *WithdrawalInput) { in.AccountHolderName = "" },
		"long notes":         func(in *WithdrawalInput) { in.Notes = strings.Repeat("n", 513) },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			in := validWithdrawal()
			mutate(&in)
			_, err := in.normalize()
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
