// Package chapa talks to the Chapa hosted-checkout API.
package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrGateway = errors.New("chapa request failed")

// Status values reported by the verify endpoint.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	log       logrus.FieldLogger
}

func NewClient(cfg Config, log logrus.FieldLogger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: timeout},
		log:       log.WithField("component", "chapa"),
	}
}

type Customization struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type InitializeRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Email         string          `json:"email"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	PhoneNumber   string          `json:"phone_number,omitempty"`
	TxRef         string          `json:"tx_ref"`
	CallbackURL   string          `json:"callback_url"`
	ReturnURL     string          `json:"return_url"`
	Customization Customization   `json:"customization"`
}

type InitializeResult struct {
	CheckoutURL string
}

type VerifyResult struct {
	Status   string
	TxRef    string
	Amount   decimal.Decimal
	Currency string
}

type apiResponse struct {
	Message json.RawMessage `json:"message"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
}

func (r *apiResponse) messageText() string {
	var s string
	if err := json.Unmarshal(r.Message, &s); err == nil {
		return s
	}
	return string(r.Message)
}

// InitializePayment opens a hosted checkout for req and returns its URL.
func (c *Client) InitializePayment(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var data struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: initialize response carries no checkout_url", ErrGateway)
	}

	c.log.WithFields(logrus.Fields{"tx_ref": req.TxRef, "amount": req.Amount.String()}).Info("checkout initialized")
	return &InitializeResult{CheckoutURL: data.CheckoutURL}, nil
}

// VerifyPayment asks Chapa for the authoritative status of txRef.
func (c *Client) VerifyPayment(ctx context.Context, txRef string) (*VerifyResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(txRef), nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		Status   string          `json:"status"`
		TxRef    string          `json:"tx_ref"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decode verify data: %v", ErrGateway, err)
	}

	return &VerifyResult{
		Status:   strings.ToLower(data.Status),
		TxRef:    data.TxRef,
		Amount:   data.Amount,
		Currency: data.Currency,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*apiResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrGateway, method, path, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s %s returned %d with undecodable body", ErrGateway, method, path, httpResp.StatusCode)
	}
	if httpResp.StatusCode >= 300 || !strings.EqualFold(resp.Status, "success") {
		c.log.WithFields(logrus.Fields{
			"path":        path,
			"http_status": httpResp.StatusCode,
			"message":     resp.messageText(),
		}).Warn("chapa rejected request")
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", ErrGateway, method, path, httpResp.StatusCode, resp.messageText())
	}
	return &resp, nil
}
