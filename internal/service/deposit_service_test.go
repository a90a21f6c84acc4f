package service

import (
	"context"
	"testing"

	"ridepay/internal/gateway/chapa"
	"ridepay/internal/infrastructure/lock"
	"ridepay/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// These cases are rejected before any database access, so no DB is wired.
func newOfflineDepositService() (*DepositService, *fakeGateway) {
	gw := newFakeGateway()
	return NewDepositService(nil, testConfig(), gw, lock.NewLocalProvider(), nil, quietLogger()), gw
}

func TestInitiateDepositValidation(t *testing.T) {
	svc, gw := newOfflineDepositService()

	tests := map[string]DepositRequest{
		"zero amount":        {UserID: "u", Amount: decimal.Zero, PaymentMethod: "telebirr"},
		"negative amount":    {UserID: "u", Amount: decimal.NewFromInt(-10), PaymentMethod: "telebirr"},
		"below minimum":      {UserID: "u", Amount: decimal.RequireFromString("0.50"), PaymentMethod: "telebirr"},
		"above maximum":      {UserID: "u", Amount: decimal.NewFromInt(100_001), PaymentMethod: "telebirr"},
		"unsupported method": {UserID: "u", Amount: decimal.NewFromInt(100), PaymentMethod: "paypal"},
		"too many decimals":  {UserID: "u", Amount: decimal.RequireFromString("10.123"), PaymentMethod: "chapa"},
	}
	for name, req := range tests {
		req := req
		t.Run(name, func(t *testing.T) {
			_, err := svc.InitiateDeposit(context.Background(), &req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Zero(t, gw.initCount())
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	svc, gw := newOfflineDepositService()
	body := []byte(`{"tx_ref":"DEP-1","status":"success"}`)

	tests := map[string]Signatures{
		"no headers":   {},
		"wrong secret": {XChapa: chapa.SignBody("other-secret", body)},
		"tampered body": {
			XChapa: chapa.SignBody(testSecret, []byte(`{"tx_ref":"DEP-1","status":"failed"}`)),
		},
	}
	for name, sig := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.HandleWebhook(context.Background(), body, sig)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
	assert.Zero(t, gw.verifyCnt)
}

func TestHandleWebhookMissingReference(t *testing.T) {
	svc, _ := newOfflineDepositService()
	body := []byte(`{"status":"success"}`)

	_, err := svc.HandleWebhook(context.Background(), body, Signatures{Chapa: chapa.SignSecret(testSecret)})
	assert.ErrorIs(t, err, ErrMissingReference)

	_, err = svc.HandleWebhook(context.Background(), []byte(`{`), Signatures{XChapa: chapa.SignBody(testSecret, []byte(`{`))})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestHandleWebhookUsesDedicatedSecret(t *testing.T) {
	svc, _ := newOfflineDepositService()
	svc.cfg.Chapa.WebhookSecret = "whsec-dedicated"
	body := []byte(`{"status":"success"}`)

	// signed with the API key, which no longer counts
	_, err := svc.HandleWebhook(context.Background(), body, Signatures{XChapa: chapa.SignBody(testSecret, body)})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// passes the signature check and fails on the missing reference
	_, err = svc.HandleWebhook(context.Background(), body, Signatures{XChapa: chapa.SignBody("whsec-dedicated", body)})
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestVerifyMapsGatewayStatus(t *testing.T) {
	svc, gw := newOfflineDepositService()
	gw.setVerify("DEP-ok", chapa.StatusSuccess)
	gw.setVerify("DEP-declined", chapa.StatusFailed)
	gw.setVerify("DEP-waiting", chapa.StatusPending)
	gw.setVerify("DEP-odd", "cancelled")

	tests := map[string]model.PaymentStatus{
		"DEP-ok":       model.PaymentStatusSuccess,
		"DEP-declined": model.PaymentStatusFailed,
		"DEP-waiting":  model.PaymentStatusPending,
		"DEP-odd":      model.PaymentStatusPending,
	}
	for ref, want := range tests {
		t.Run(ref, func(t *testing.T) {
			got, err := svc.verify(context.Background(), ref)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := svc.verify(context.Background(), "DEP-unknown")
	assert.ErrorIs(t, err, errGatewayDown)
}

func TestReturnURLKeepsExistingQuery(t *testing.T) {
	assert.Equal(t, "https://api.test/wallet/payment-return?tx_ref=DEP-1",
		returnURL("https://api.test/wallet/payment-return", "DEP-1"))
	assert.Equal(t, "https://api.test/return?lang=am&tx_ref=DEP-1",
		returnURL("https://api.test/return?lang=am", "DEP-1"))
}
