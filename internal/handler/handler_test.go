package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ridepay/internal/config"
	"ridepay/internal/gateway/chapa"
	"ridepay/internal/infrastructure/lock"
	"ridepay/internal/notify"
	"ridepay/internal/service"
	"ridepay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret   = "jwt-test-secret"
	testChapaSecret = "CHASECK_TEST-secret"
)

type stubGateway struct{}

func (stubGateway) InitializePayment(ctx context.Context, req chapa.InitializeRequest) (*chapa.InitializeResult, error) {
	return nil, errors.New("not reachable in these tests")
}

func (stubGateway) VerifyPayment(ctx context.Context, txRef string) (*chapa.VerifyResult, error) {
	return nil, errors.New("not reachable in these tests")
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "ridepay-wallet", DeepLinkScheme: "ridepay"},
		Chapa: config.ChapaConfig{
			SecretKey: testChapaSecret,
		},
		Wallet: config.WalletConfig{
			Currency:              "ETB",
			AllowedPaymentMethods: []string{"telebirr", "chapa"},
			MinDepositCents:       100,
			MaxDepositCents:       10_000_000,
		},
		JWT: config.JWTConfig{Secret: testJWTSecret},
	}
}

// newTestRouter builds the full router over services without a database.
// Only requests rejected before any storage access are exercised here.
func newTestRouter(t *testing.T) (*gin.Engine, *notify.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	log := logrus.New()
	log.SetOutput(io.Discard)

	hub := notify.NewHub()
	wallets := service.NewWalletService(nil, cfg, log)
	deposits := service.NewDepositService(nil, cfg, stubGateway{}, lock.NewLocalProvider(), hub, log)
	withdrawals := service.NewWithdrawalService(nil, cfg, hub, log)

	r, err := SetupRouter(cfg, log, NewHandler(cfg, log, wallets, deposits, withdrawals, hub))
	require.NoError(t, err)
	return r, hub
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := SignToken(userID, testJWTSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(r http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuthRequired(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage token":  "Bearer not-a-jwt",
	}
	for name, auth := range tests {
		t.Run(name, func(t *testing.T) {
			w := doJSON(r, http.MethodGet, "/wallet/balance", auth, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, response.CodeUnauthorized, decodeEnvelope(t, w).Code)
		})
	}

	t.Run("wrong signing key", func(t *testing.T) {
		token, err := SignToken("u-1", "someone-else", time.Hour)
		require.NoError(t, err)
		w := doJSON(r, http.MethodGet, "/wallet/balance", "Bearer "+token, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := SignToken("u-1", testJWTSecret, -time.Minute)
		require.NoError(t, err)
		w := doJSON(r, http.MethodGet, "/wallet/balance", "Bearer "+token, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestParseTokenFallsBackToSubject(t *testing.T) {
	token, err := SignToken("u-42", testJWTSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "u-42", claims.UserID)
	assert.Equal(t, "u-42", claims.Subject)
}

func TestDepositRejectsBadInput(t *testing.T) {
	r, _ := newTestRouter(t)
	auth := bearer(t, "u-1")

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"malformed json", `{"amount":`, "invalid request body"},
		{"missing method", `{"amount":"100"}`, "payment_method is required"},
		{"unsupported method", `{"amount":"100","payment_method":"paypal"}`, `payment method "paypal" is not supported`},
		{"below minimum", `{"amount":"0.50","payment_method":"telebirr"}`, "minimum deposit is 1.00 ETB"},
		{"too many decimals", `{"amount":"10.005","payment_method":"chapa"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/wallet/deposit", auth, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeEnvelope(t, w)
			assert.Equal(t, response.CodeParamError, resp.Code)
			if tt.message != "" {
				assert.Contains(t, resp.Message, tt.message)
			}
		})
	}
}

func TestWithdrawRejectsBadInput(t *testing.T) {
	r, _ := newTestRouter(t)
	auth := bearer(t, "u-1")

	tests := map[string]string{
		"missing bank":         `{"amount":"10","account_number":"1000200030","account_holder_name":"Abebe"}`,
		"letters in account":   `{"amount":"10","bank_name":"CBE","account_number":"12ab5678","account_holder_name":"Abebe"}`,
		"account too short":    `{"amount":"10","bank_name":"CBE","account_number":"123","account_holder_name":"Abebe"}`,
		"non positive amount":  `{"amount":"0","bank_name":"CBE","account_number":"1000200030","account_holder_name":"Abebe"}`,
		"missing holder name":  `{"amount":"10","bank_name":"CBE","account_number":"1000200030"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/wallet/withdraw", auth, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestListTransactionsRejectsNonNumericPaging(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/wallet/transactions?page=abc", bearer(t, "u-1"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejections(t *testing.T) {
	r, _ := newTestRouter(t)

	send := func(body string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/wallet/webhook", strings.NewReader(body))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("unsigned", func(t *testing.T) {
		w := send(`{"tx_ref":"DEP-1","status":"success"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"ok":false,"error":"invalid signature"}`, w.Body.String())
	})

	t.Run("signed but no reference", func(t *testing.T) {
		body := `{"status":"success"}`
		w := send(body, map[string]string{chapa.HeaderXSignature: chapa.SignBody(testChapaSecret, []byte(body))})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"ok":false,"error":"missing transaction reference"}`, w.Body.String())
	})

	t.Run("signed but not json", func(t *testing.T) {
		body := `status=success`
		w := send(body, map[string]string{chapa.HeaderSignature: chapa.SignSecret(testChapaSecret)})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"ok":false,"error":"invalid payload"}`, w.Body.String())
	})
}

func TestPaymentReturnPage(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/wallet/payment-return?tx_ref=DEP-20240101-1-abcd&status=success", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, "ridepay://wallet/payment-return?status=success&amp;tx_ref=DEP-20240101-1-abcd")
	assert.Contains(t, body, "Reference: DEP-20240101-1-abcd")
}

func TestPaymentReturnEscapesReference(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/wallet/payment-return?trx_ref=%3Cscript%3E", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "Reference: <script>")
}

func TestErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := &Handler{log: log}

	tests := []struct {
		err    error
		status int
		code   int
	}{
		{fmt.Errorf("%w: amount must be positive", service.ErrValidation), http.StatusBadRequest, response.CodeParamError},
		{service.ErrUserNotFound, http.StatusNotFound, response.CodeNotFound},
		{service.ErrWalletNotFound, http.StatusNotFound, response.CodeAccountNotFound},
		{service.ErrInsufficientBalance, http.StatusUnprocessableEntity, response.CodeBalanceNotEnough},
		{fmt.Errorf("%w: upstream 500", service.ErrPaymentInitialization), http.StatusBadGateway, response.CodePaymentFailed},
		{service.ErrWalletBusy, http.StatusConflict, response.CodeDuplicateRequest},
		{errors.New("connection refused"), http.StatusInternalServerError, response.CodeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.fail(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeEnvelope(t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotContains(t, resp.Message, "connection refused")
		})
	}
}

func TestEventsStream(t *testing.T) {
	r, hub := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/wallet/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", bearer(t, "u-7"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	waitFor := func(event string) string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.TrimSpace(line) == "event:"+event {
				data, err := reader.ReadString('\n')
				require.NoError(t, err)
				return strings.TrimPrefix(strings.TrimSpace(data), "data:")
			}
		}
	}

	waitFor("ready")
	require.NoError(t, hub.Notify(ctx, "u-8", "balance.updated", map[string]int64{"balance_cents": 1}))
	require.NoError(t, hub.Notify(ctx, "u-7", "balance.updated", map[string]int64{"balance_cents": 5000}))

	var msg notify.Message
	require.NoError(t, json.Unmarshal([]byte(waitFor("balance.updated")), &msg))
	assert.Equal(t, "u-7", msg.UserID)
	assert.JSONEq(t, `{"balance_cents":5000}`, string(msg.Payload))
}
