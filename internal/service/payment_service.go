package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/repository"
)

const idempotencyTTL = 24 * time.Hour

// IdempotencyStore remembers which payment an idempotency key created.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// PaymentService is the merchant-facing entry point: it creates payments and
// triggers dispatch passes over them.
type PaymentService struct {
	repo       repository.PaymentRepository
	dispatcher *TransactionDispatcher
	store      IdempotencyStore
	logger     *zap.Logger
}

func NewPaymentService(repo repository.PaymentRepository, dispatcher *TransactionDispatcher, store IdempotencyStore, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		repo:       repo,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
	}
}

// CreatePayment creates a payment with one pending transaction and runs the
// first dispatch pass over it. Requests repeating an idempotency key get the
// payment the first request created.
func (s *PaymentService) CreatePayment(ctx context.Context, req *models.CreatePaymentRequest) (*models.Payment, error) {
	if req.IdempotencyKey != "" {
		if p, ok := s.idempotentPayment(ctx, req.IdempotencyKey); ok {
			return p, nil
		}
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, &ValidationError{Fields: []string{"amount"}, Reason: "amount must be a positive decimal"}
	}
	if req.Method.ClearingType() == "" {
		return nil, &ValidationError{Fields: []string{"method"}, Reason: fmt.Sprintf("unsupported payment method %s", req.Method)}
	}

	money := models.Money{Amount: amount, Currency: req.Currency}
	draft := &models.PaymentDraft{
		Reference:     req.Reference,
		Method:        req.Method,
		InterfaceName: models.InterfaceNamePayone,
		AmountPlanned: money,
		Transactions: []models.Transaction{{
			Type:   req.TransactionType,
			State:  models.TransactionStatePending,
			Amount: money,
		}},
	}
	if req.LanguageCode != "" {
		draft.CustomFields = map[string]string{models.CustomFieldLanguage: req.LanguageCode}
	}

	p, err := s.repo.Create(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	s.logger.Info("payment created",
		zap.String("payment_id", p.ID),
		zap.String("method", string(p.Method)),
		zap.String("transaction_type", string(req.TransactionType)),
		zap.String("amount", amount.String()),
		zap.String("currency", req.Currency))

	if req.IdempotencyKey != "" {
		s.rememberIdempotent(ctx, req.IdempotencyKey, p.ID)
	}

	return s.dispatcher.Dispatch(ctx, p)
}

// GetPayment retrieves a payment by ID
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.repo.Get(ctx, paymentID)
}

// HandlePayment runs one dispatch pass over a stored payment.
func (s *PaymentService) HandlePayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.dispatcher.DispatchByID(ctx, paymentID)
}

func (s *PaymentService) idempotentPayment(ctx context.Context, key string) (*models.Payment, bool) {
	if s.store == nil {
		return nil, false
	}
	id, err := s.store.Get(ctx, idempotencyKey(key))
	if err != nil || id == "" {
		return nil, false
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to load idempotent payment", zap.String("payment_id", id), zap.Error(err))
		}
		return nil, false
	}
	return p, true
}

func (s *PaymentService) rememberIdempotent(ctx context.Context, key, paymentID string) {
	if s.store == nil {
		return
	}
	if err := s.store.Set(ctx, idempotencyKey(key), paymentID, idempotencyTTL); err != nil {
		s.logger.Warn("failed to cache idempotency key", zap.String("payment_id", paymentID), zap.Error(err))
	}
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}
