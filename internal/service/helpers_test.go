package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"ridepay/internal/config"
	"ridepay/internal/gateway/chapa"

	"github.com/sirupsen/logrus"
)

const testSecret = "CHASECK_TEST-secret"

func testConfig() *config.Config {
	return &config.Config{
		Chapa: config.ChapaConfig{
			SecretKey:   testSecret,
			PublicKey:   "CHAPUBK_TEST-public",
			CallbackURL: "https://api.test/wallet/webhook",
			ReturnURL:   "https://api.test/wallet/payment-return",
		},
		Wallet: config.WalletConfig{
			Currency:              "ETB",
			AllowedPaymentMethods: []string{"telebirr", "cbe_birr", "chapa"},
			MinDepositCents:       100,
			MaxDepositCents:       10_000_000,
			PendingDepositExpiry:  24 * time.Hour,
			FallbackEmailDomain:   "wallet.test",
		},
		Kafka: config.KafkaConfig{
			Enabled: true,
			Topic:   config.KafkaTopicConfig{WalletEvents: "wallet-events"},
		},
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var errGatewayDown = errors.New("gateway down")

// fakeGateway records initialize calls and answers verify from a table.
// References missing from the table fail verification.
type fakeGateway struct {
	mu        sync.Mutex
	initErr   error
	inits     []chapa.InitializeRequest
	verify    map[string]string
	verifyCnt int
	// onVerify, when set, runs before each verify answer without holding mu.
	onVerify func(txRef string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{verify: make(map[string]string)}
}

func (g *fakeGateway) InitializePayment(ctx context.Context, req chapa.InitializeRequest) (*chapa.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inits = append(g.inits, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &chapa.InitializeResult{CheckoutURL: "https://checkout.test/" + req.TxRef}, nil
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, txRef string) (*chapa.VerifyResult, error) {
	g.mu.Lock()
	hook := g.onVerify
	g.mu.Unlock()
	if hook != nil {
		hook(txRef)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCnt++
	status, ok := g.verify[txRef]
	if !ok {
		return nil, errGatewayDown
	}
	return &chapa.VerifyResult{Status: status, TxRef: txRef}, nil
}

func (g *fakeGateway) setVerify(ref, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verify[ref] = status
}

func (g *fakeGateway) initCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inits)
}

func (g *fakeGateway) lastInit() chapa.InitializeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inits[len(g.inits)-1]
}
