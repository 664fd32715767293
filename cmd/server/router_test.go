package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/app"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/config"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/handler"
)

func newTestRouter(t *testing.T, gatewayURL string) http.Handler {
	t.Helper()
	cfg := &config.Config{
		LedgerBackend:      config.BackendMemory,
		PayoneAPIURL:       gatewayURL,
		PayoneMerchantID:   "42",
		PayonePortalID:     "2000001",
		PayoneSubAccountID: "30001",
		PayoneKey:          "secret",
		PayoneMode:         "test",
		GatewayTimeout:     2 * time.Second,
		PublicBaseURL:      "http://localhost:8080",
	}

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	log := zap.NewNop()
	return setupRouter(a,
		handler.NewPaymentHandler(a.Payments, log),
		handler.NewNotificationHandler(a.NotificationDispatcher, log),
		log, false)
}

func TestRouter_Probes(t *testing.T) {
	router := newTestRouter(t, "http://127.0.0.1:1/")

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_PaymentFlow(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "preauthorization", r.PostForm.Get("request"))
		w.Write([]byte("status=APPROVED\ntxid=123456789\nuserid=99"))
	}))
	defer gw.Close()

	router := newTestRouter(t, gw.URL)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(
		`{"amount":"20.00","currency":"EUR","method":"CREDIT_CARD","transaction_type":"AUTHORIZATION","reference":"order-1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"state":"SUCCESS"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	notification := "key=5ebe2294ecd0e0f08eab7690d2a6ee69&portalid=2000001&aid=30001&mode=test" +
		"&txid=123456789&txaction=capture&sequencenumber=1&price=20.00&currency=EUR&clearingtype=cc"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/payone", strings.NewReader(notification)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "TSOK", w.Body.String())
}
