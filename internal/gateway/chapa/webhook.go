package chapa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Header names Chapa signs webhooks with.
const (
	HeaderSignature  = "chapa-signature"
	HeaderXSignature = "x-chapa-signature"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingReference = errors.New("webhook carries no transaction reference")
)

func sign(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignBody is the x-chapa-signature value for body.
func SignBody(secret string, body []byte) string {
	return sign(secret, body)
}

// SignSecret is the chapa-signature value, an HMAC of the secret itself.
func SignSecret(secret string) string {
	return sign(secret, []byte(secret))
}

func equalHex(got, want string) bool {
	got = strings.ToLower(strings.TrimSpace(got))
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(got), []byte(want))
}

// VerifySignature accepts the delivery when either header matches its
// expected digest.
func VerifySignature(secret string, body []byte, chapaSignature, xChapaSignature string) error {
	if secret == "" {
		return ErrInvalidSignature
	}
	if equalHex(chapaSignature, SignSecret(secret)) {
		return nil
	}
	if equalHex(xChapaSignature, SignBody(secret, body)) {
		return nil
	}
	return ErrInvalidSignature
}

// WebhookEvent is the subset of the webhook body the wallet acts on.
type WebhookEvent struct {
	TxRef     string `json:"tx_ref"`
	TrxRef    string `json:"trx_ref"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Event     string `json:"event"`
}

// Ref returns the first non-empty of tx_ref, trx_ref and reference.
func (e *WebhookEvent) Ref() string {
	for _, r := range []string{e.TxRef, e.TrxRef, e.Reference} {
		if r = strings.TrimSpace(r); r != "" {
			return r
		}
	}
	return ""
}

// Succeeded is the coarse outcome the webhook claims.
func (e *WebhookEvent) Succeeded() bool {
	return strings.EqualFold(e.Status, StatusSuccess) || strings.EqualFold(e.Event, "charge.success")
}

func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}
	if ev.Ref() == "" {
		return nil, ErrMissingReference
	}
	return &ev, nil
}
