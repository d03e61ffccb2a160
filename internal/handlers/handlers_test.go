package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markjakearzadon/mpesa-gobackend/internal/db"
	"github.com/markjakearzadon/mpesa-gobackend/internal/models"
	"github.com/markjakearzadon/mpesa-gobackend/internal/mpesa"
	"github.com/markjakearzadon/mpesa-gobackend/internal/services"
)

type memStore struct {
	mu        sync.Mutex
	txs       []models.Transaction
	insertErr error
	updateErr error
	findErr   error
	findPanic bool
}

func (m *memStore) Insert(_ context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.txs = append(m.txs, *tx)
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, checkoutRequestID string, status models.Status, resultDesc string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	for i := range m.txs {
		if m.txs[i].CheckoutRequestID == checkoutRequestID {
			m.txs[i].Status = status
			m.txs[i].ResultDesc = resultDesc
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memStore) Find(_ context.Context, f db.Filter) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findPanic {
		panic("cursor exhausted twice")
	}
	if m.findErr != nil {
		return nil, m.findErr
	}
	out := []models.Transaction{}
	for _, tx := range m.txs {
		if f.Status == nil || tx.Status == *f.Status {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// daraja stubs the two Safaricom endpoints the service calls.
type daraja struct {
	tokenStatus int
	pushStatus  int
	pushBody    map[string]string
	pushRaw     string
}

func (d *daraja) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/oauth/v1/generate":
		if d.tokenStatus != http.StatusOK {
			w.WriteHeader(d.tokenStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "expires_in": "3599"})
	case "/mpesa/stkpush/v1/processrequest":
		w.WriteHeader(d.pushStatus)
		if d.pushRaw != "" {
			w.Write([]byte(d.pushRaw))
			return
		}
		json.NewEncoder(w).Encode(d.pushBody)
	default:
		http.NotFound(w, r)
	}
}

func acceptingDaraja() *daraja {
	return &daraja{
		tokenStatus: http.StatusOK,
		pushStatus:  http.StatusOK,
		pushBody: map[string]string{
			"MerchantRequestID":   "29115-34620561-1",
			"CheckoutRequestID":   "ws_CO_191220191020363925",
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
		},
	}
}

type testServer struct {
	handler http.Handler
	store   *memStore
}

func newTestServer(t *testing.T, d *daraja, jwtSecret string) *testServer {
	t.Helper()
	provider := httptest.NewServer(d)
	t.Cleanup(provider.Close)

	logger := zap.NewNop()
	store := &memStore{}
	client := mpesa.NewClient(mpesa.Config{
		BaseURL:        provider.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		PassKey:        "passkey",
		CallbackURL:    "https://example.com/api/mpesa-callback",
	}, mpesa.WithLogger(logger))

	payments := services.NewPaymentService(client, store, logger)
	callbacks := services.NewCallbackService(store, nil, logger)
	transactions := services.NewTransactionService(store, logger)

	handler := NewRouter(RouterConfig{
		Payments:          NewPaymentHandler(payments, callbacks, logger),
		Transactions:      NewTransactionHandler(transactions),
		OperatorJWTSecret: jwtSecret,
		Logger:            logger,
	})
	return &testServer{handler: handler, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

const paymentBody = `{"phone":"254712345678","amount":10,"order_number":"TEST-1","description":"Test payment"}`

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestPaymentFlow(t *testing.T) {
	srv := newTestServer(t, acceptingDaraja(), "")

	rec := srv.do(t, http.MethodPost, "/api/request-payment", paymentBody, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeJSON[models.PaymentResult](t, rec)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.TransactionID)
	assert.Equal(t, "ws_CO_191220191020363925", res.CheckoutRequestID)

	rec = srv.do(t, http.MethodGet, "/api/transactions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	views := decodeJSON[[]map[string]any](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, res.TransactionID, views[0]["id"])
	assert.Equal(t, "Pending", views[0]["status"])
	assert.NotContains(t, views[0], "checkout_request_id")

	callback := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_191220191020363925","ResultCode":0,"ResultDesc":"ok"}}}`
	for i := 0; i < 2; i++ {
		rec = srv.do(t, http.MethodPost, "/api/mpesa-callback", callback, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		ack := decodeJSON[callbackAck](t, rec)
		assert.Equal(t, callbackAck{ResultCode: 0, ResultDesc: "Callback processed successfully"}, ack)
	}

	rec = srv.do(t, http.MethodGet, "/api/transactions", "", nil)
	views = decodeJSON[[]map[string]any](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, "Success", views[0]["status"])

	rec = srv.do(t, http.MethodGet, "/api/transactions/download", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=successful_transactions.csv", rec.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\r\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Order Number,Phone Number,Amount,Description,Status,Timestamp", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "TEST-1,254712345678,10,Test payment,Success,"))
}

func TestRequestPayment_Errors(t *testing.T) {
	t.Run("authentication failure", func(t *testing.T) {
		d := acceptingDaraja()
		d.tokenStatus = http.StatusUnauthorized
		srv := newTestServer(t, d, "")

		rec := srv.do(t, http.MethodPost, "/api/request-payment", paymentBody, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to authenticate with MPesa", decodeJSON[errorResponse](t, rec).Detail)
		assert.Empty(t, srv.store.txs)
	})

	t.Run("provider rejection", func(t *testing.T) {
		d := acceptingDaraja()
		d.pushStatus = http.StatusBadRequest
		d.pushBody = map[string]string{"errorCode": "400.002.02", "errorMessage": "Bad Request - Invalid PhoneNumber"}
		srv := newTestServer(t, d, "")

		rec := srv.do(t, http.MethodPost, "/api/request-payment", paymentBody, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Bad Request - Invalid PhoneNumber", decodeJSON[errorResponse](t, rec).Detail)
		assert.Empty(t, srv.store.txs)
	})

	t.Run("undecodable provider response", func(t *testing.T) {
		d := acceptingDaraja()
		d.pushRaw = "<html>gateway timeout</html>"
		srv := newTestServer(t, d, "")

		rec := srv.do(t, http.MethodPost, "/api/request-payment", paymentBody, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.True(t, strings.HasPrefix(decodeJSON[errorResponse](t, rec).Detail, "Payment request failed: "))
		assert.Empty(t, srv.store.txs)
	})

	t.Run("accepted without checkout id", func(t *testing.T) {
		d := acceptingDaraja()
		d.pushBody = map[string]string{"ResponseCode": "0"}
		srv := newTestServer(t, d, "")

		rec := srv.do(t, http.MethodPost, "/api/request-payment", paymentBody, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Payment request failed: "+services.ErrMissingCheckoutID.Error(), decodeJSON[errorResponse](t, rec).Detail)
		assert.Empty(t, srv.store.txs)
	})

	t.Run("store failure after acceptance", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")
		srv.store.insertErr = errors.New("mongo unavailable")

		rec := srv.do(t, http.MethodPost, "/api/request-payment", paymentBody, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Payment request failed: mongo unavailable", decodeJSON[errorResponse](t, rec).Detail)
	})

	t.Run("integral float amount", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")

		rec := srv.do(t, http.MethodPost, "/api/request-payment",
			`{"phone":"254712345678","amount":10.0,"order_number":"TEST-1"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, srv.store.txs, 1)
		assert.Equal(t, int64(10), srv.store.txs[0].Amount)
	})

	t.Run("oversized body", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")

		body := `{"phone":"254712345678","amount":10,"order_number":"TEST-1","description":"` +
			strings.Repeat("x", maxBodyBytes) + `"}`
		rec := srv.do(t, http.MethodPost, "/api/request-payment", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, srv.store.txs)
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")

		rec := srv.do(t, http.MethodPost, "/api/request-payment", `{"phone":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, srv.store.txs)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")

		rec := srv.do(t, http.MethodPost, "/api/request-payment", `{"phone":"254712345678","amount":0,"order_number":"X"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, srv.store.txs)
	})
}

func TestMpesaCallback_Acks(t *testing.T) {
	t.Run("payload without checkout id", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")
		rec := srv.do(t, http.MethodPost, "/api/mpesa-callback", `{"Body":{}}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, decodeJSON[callbackAck](t, rec).ResultCode)
	})

	t.Run("unknown checkout id", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")
		rec := srv.do(t, http.MethodPost, "/api/mpesa-callback",
			`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_nope","ResultCode":0}}}`, nil)
		assert.Equal(t, 0, decodeJSON[callbackAck](t, rec).ResultCode)
	})

	t.Run("storage failure", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")
		srv.store.updateErr = errors.New("mongo unavailable")
		rec := srv.do(t, http.MethodPost, "/api/mpesa-callback",
			`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0}}}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, callbackAck{ResultCode: 1, ResultDesc: "Callback processing failed"}, decodeJSON[callbackAck](t, rec))
	})

	t.Run("undecodable body", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")
		rec := srv.do(t, http.MethodPost, "/api/mpesa-callback", `not json`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decodeJSON[callbackAck](t, rec).ResultCode)
	})
}

func TestTransactions_Endpoints(t *testing.T) {
	t.Run("empty listing is an empty array", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")
		rec := srv.do(t, http.MethodGet, "/api/transactions", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("listing failure", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")
		srv.store.findErr = errors.New("mongo unavailable")
		rec := srv.do(t, http.MethodGet, "/api/transactions", "", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to fetch transactions", decodeJSON[errorResponse](t, rec).Detail)
	})

	t.Run("download failure", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")
		srv.store.findErr = errors.New("mongo unavailable")
		rec := srv.do(t, http.MethodGet, "/api/transactions/download", "", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to download transactions", decodeJSON[errorResponse](t, rec).Detail)
	})

	t.Run("panic becomes a 500", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")
		srv.store.findPanic = true
		rec := srv.do(t, http.MethodGet, "/api/transactions", "", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		// the server keeps serving afterwards
		srv.store.findPanic = false
		rec = srv.do(t, http.MethodGet, "/api/transactions", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("download with nothing successful", func(t *testing.T) {
		srv := newTestServer(t, acceptingDaraja(), "")
		srv.store.txs = []models.Transaction{{ID: "tx-1", Status: models.StatusPending, Timestamp: time.Now()}}
		rec := srv.do(t, http.MethodGet, "/api/transactions/download", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "No successful transactions found", decodeJSON[errorResponse](t, rec).Detail)
	})
}

func signed(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestOperatorAuth(t *testing.T) {
	srv := newTestServer(t, acceptingDaraja(), "operator-secret")

	rec := srv.do(t, http.MethodGet, "/api/transactions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := http.Header{"Authorization": {"Bearer " + signed(t, "wrong-secret")}}
	rec = srv.do(t, http.MethodGet, "/api/transactions/download", "", bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "operator"})
	forever, err := noExpiry.SignedString([]byte("operator-secret"))
	require.NoError(t, err)
	rec = srv.do(t, http.MethodGet, "/api/transactions", "", http.Header{"Authorization": {"Bearer " + forever}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	good := http.Header{"Authorization": {"Bearer " + signed(t, "operator-secret")}}
	rec = srv.do(t, http.MethodGet, "/api/transactions", "", good)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the provider cannot authenticate, so payment routes stay open
	rec = srv.do(t, http.MethodPost, "/api/mpesa-callback", `{"Body":{}}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, acceptingDaraja(), "")

	rec := srv.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "payments_http_requests_total")
}
