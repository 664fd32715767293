package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/gateway"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/repository"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePaymentService struct {
	payment *models.Payment
	err     error
	created *models.CreatePaymentRequest
}

func (s *fakePaymentService) CreatePayment(_ context.Context, req *models.CreatePaymentRequest) (*models.Payment, error) {
	s.created = req
	return s.payment, s.err
}

func (s *fakePaymentService) GetPayment(context.Context, string) (*models.Payment, error) {
	return s.payment, s.err
}

func (s *fakePaymentService) HandlePayment(context.Context, string) (*models.Payment, error) {
	return s.payment, s.err
}

func newRouter(payments PaymentService, notifications NotificationDispatcher) *gin.Engine {
	router := gin.New()
	ph := NewPaymentHandler(payments, zap.NewNop())
	nh := NewNotificationHandler(notifications, zap.NewNop())

	v1 := router.Group("/api/v1")
	v1.POST("/payments", ph.CreatePayment)
	v1.GET("/payments/:id", ph.GetPayment)
	v1.POST("/payments/:id/handle", ph.HandlePayment)
	v1.POST("/notifications/payone", nh.Payone)
	return router
}

func TestPaymentHandler_CreatePayment(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{
			name:       "created",
			body:       `{"amount":"20.00","currency":"EUR","method":"CREDIT_CARD","transaction_type":"AUTHORIZATION"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing currency",
			body:       `{"amount":"20.00","method":"CREDIT_CARD","transaction_type":"AUTHORIZATION"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "refund is not a create type",
			body:       `{"amount":"20.00","currency":"EUR","method":"CREDIT_CARD","transaction_type":"REFUND"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "service validation",
			body:       `{"amount":"-1","currency":"EUR","method":"CREDIT_CARD","transaction_type":"CHARGE"}`,
			err:        &service.ValidationError{Fields: []string{"amount"}, Reason: "amount must be a positive decimal"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "gateway unreachable",
			body:       `{"amount":"20.00","currency":"EUR","method":"CREDIT_CARD","transaction_type":"CHARGE"}`,
			err:        fmt.Errorf("failed to update payment p-1: %w", fmt.Errorf("boom")),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakePaymentService{payment: &models.Payment{ID: "p-1", Version: 3}, err: tt.err}
			router := newRouter(svc, nil)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestPaymentHandler_RedirectResponse(t *testing.T) {
	svc := &fakePaymentService{payment: &models.Payment{
		ID:           "p-1",
		Transactions: []models.Transaction{{ID: "tx-1", State: models.TransactionStatePending}},
		CustomFields: map[string]string{models.CustomFieldRedirectURL: "https://checkout.example/r"},
	}}
	router := newRouter(svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/p-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.PaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "redirect_to_url", resp.NextAction)
	assert.Equal(t, "https://checkout.example/r", resp.RedirectURL)
}

func TestPaymentHandler_HandlePaymentErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "unknown payment", err: fmt.Errorf("failed to load payment x: %w", repository.ErrNotFound), wantStatus: http.StatusNotFound},
		{name: "conflict", err: &service.ConflictError{PaymentID: "x", Retryable: true, Err: repository.ErrVersionConflict}, wantStatus: http.StatusConflict},
		{name: "in flight", err: fmt.Errorf("payment x: %w", service.ErrConcurrentExecution), wantStatus: http.StatusAccepted},
		{name: "unknown status", err: &service.UnknownStatusError{Status: "NEW"}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&fakePaymentService{err: tt.err}, nil)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/payments/x/handle", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestNotificationHandler_Payone(t *testing.T) {
	creds := gateway.Credentials{PortalID: "2000001", SubAccountID: "30001", Key: "secret", Mode: "test"}
	repo := repository.NewMemoryPaymentRepository()
	dispatcher := service.NewNotificationDispatcher(repo, service.DefaultProcessors(), creds, nil, zap.NewNop())
	router := newRouter(&fakePaymentService{}, dispatcher)

	body := strings.Join([]string{
		"key=" + creds.KeyHash(),
		"portalid=2000001",
		"aid=30001",
		"mode=test",
		"txid=123456789",
		"txaction=appointed",
		"sequencenumber=0",
		"price=20.00",
		"currency=EUR",
		"clearingtype=cc",
	}, "&")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/payone", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "TSOK", w.Body.String())

	p, err := repo.FindByInterfaceID(context.Background(), models.InterfaceNamePayone, "123456789")
	require.NoError(t, err)
	require.Len(t, p.Transactions, 1)
	assert.Equal(t, models.TransactionStateSuccess, p.Transactions[0].State)

	forged := strings.Replace(body, "key="+creds.KeyHash(), "key=00000000000000000000000000000000", 1)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/payone", strings.NewReader(forged)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationHandler_PayoneTrailingNewline(t *testing.T) {
	creds := gateway.Credentials{PortalID: "2000001", SubAccountID: "30001", Key: "secret", Mode: "test"}
	repo := repository.NewMemoryPaymentRepository()
	dispatcher := service.NewNotificationDispatcher(repo, service.DefaultProcessors(), creds, nil, zap.NewNop())
	router := newRouter(&fakePaymentService{}, dispatcher)

	body := "key=" + creds.KeyHash() +
		"&portalid=2000001&aid=30001&mode=test&txid=987654321&txaction=appointed" +
		"&sequencenumber=0&price=20.00&currency=EUR&clearingtype=cc\n"

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/payone", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "TSOK", w.Body.String())

	p, err := repo.FindByInterfaceID(context.Background(), models.InterfaceNamePayone, "987654321")
	require.NoError(t, err)
	require.Len(t, p.Transactions, 1)
	assert.Equal(t, models.TransactionStateSuccess, p.Transactions[0].State)
}
