package service

import (
	"context"

	"ridepay/internal/gateway/chapa"
)

// PaymentGateway is the hosted-checkout provider.
type PaymentGateway interface {
	InitializePayment(ctx context.Context, req chapa.InitializeRequest) (*chapa.InitializeResult, error)
	VerifyPayment(ctx context.Context, txRef string) (*chapa.VerifyResult, error)
}

// Notifier pushes an event to the user's live connections. Delivery is best
// effort.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload interface{}) error
}
