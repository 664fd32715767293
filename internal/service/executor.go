package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/gateway"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/metrics"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/repository"
)

const (
	// A request younger than this is owned by whoever sent it.
	inFlightWindow = 60 * time.Second
	// A request older than this without an answer is presumed lost.
	abandonedAfter = 5 * time.Minute
)

// Executor moves one transaction forward and returns the resulting payment.
type Executor interface {
	Execute(ctx context.Context, payment *models.Payment, tx models.Transaction) (*models.Payment, error)
}

// RequestBuilder renders the outbound parameters of a transaction.
type RequestBuilder interface {
	Build(p *models.Payment, tx models.Transaction, sequence int) (map[string]string, error)
}

type executionState int

const (
	stateFirstAttempt executionState = iota
	stateCompleted
	stateInFlight
	stateUncertain
	stateAbandoned
)

func (s executionState) String() string {
	switch s {
	case stateCompleted:
		return "completed"
	case stateInFlight:
		return "in_flight"
	case stateUncertain:
		return "uncertain"
	case stateAbandoned:
		return "abandoned"
	default:
		return "first_attempt"
	}
}

// IdempotentExecutor performs a transaction's gateway call at most once per
// claim. Whether a call already happened is read from the interaction log,
// never from memory.
type IdempotentExecutor struct {
	repo     repository.PaymentRepository
	gateway  gateway.Poster
	requests RequestBuilder
	logger   *zap.Logger
	now      func() time.Time
}

func NewIdempotentExecutor(repo repository.PaymentRepository, poster gateway.Poster, requests RequestBuilder, logger *zap.Logger) *IdempotentExecutor {
	return &IdempotentExecutor{
		repo:     repo,
		gateway:  poster,
		requests: requests,
		logger:   logger,
		now:      time.Now,
	}
}

func (e *IdempotentExecutor) Execute(ctx context.Context, p *models.Payment, tx models.Transaction) (*models.Payment, error) {
	state := classify(p, tx, e.now())
	metrics.ExecutorOutcomesTotal.WithLabelValues(string(tx.Type), state.String()).Inc()

	switch state {
	case stateCompleted, stateUncertain:
		return p, nil
	case stateInFlight:
		return nil, fmt.Errorf("payment %s transaction %s: %w", p.ID, tx.ID, ErrConcurrentExecution)
	case stateAbandoned:
		e.logger.Warn("re-attempting abandoned transaction",
			zap.String("payment_id", p.ID),
			zap.String("transaction_id", tx.ID),
			zap.String("previous_interaction_id", tx.InteractionID))
	}

	return e.attempt(ctx, p, tx)
}

// classify derives where tx stands from the interaction log alone.
func classify(p *models.Payment, tx models.Transaction, now time.Time) executionState {
	if len(p.InteractionsFor(tx.ID, models.InteractionResponse, models.InteractionRedirect)) > 0 {
		return stateCompleted
	}
	if tx.InteractionID != "" && p.HasNotificationWithSequence(tx.InteractionID) {
		return stateCompleted
	}

	requests := p.InteractionsFor(tx.ID, models.InteractionRequest)
	if len(requests) == 0 {
		return stateFirstAttempt
	}

	latest := requests[0].Timestamp
	for _, r := range requests[1:] {
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}

	age := now.Sub(latest)
	switch {
	case age < inFlightWindow:
		return stateInFlight
	case age > abandonedAfter:
		return stateAbandoned
	default:
		return stateUncertain
	}
}

func (e *IdempotentExecutor) attempt(ctx context.Context, p *models.Payment, tx models.Transaction) (*models.Payment, error) {
	sequence := models.NextSequenceNumber(p)
	interactionID := strconv.Itoa(sequence)

	params, err := e.requests.Build(p, tx, sequence)
	if err != nil {
		e.logger.Error("failed to build gateway request",
			zap.String("payment_id", p.ID),
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
		return e.update(ctx, p, []models.UpdateAction{
			models.AddInterfaceInteraction{Entry: e.entry(models.InteractionUnsupported, tx.ID, err.Error())},
			models.ChangeTransactionState{TransactionID: tx.ID, State: models.TransactionStateFailure},
		})
	}

	// The claim must be durable before the network call, otherwise a
	// concurrent run cannot see that this transaction is taken.
	claimed, err := e.update(ctx, p, []models.UpdateAction{
		models.AddInterfaceInteraction{Entry: e.entry(models.InteractionRequest, tx.ID, encodePayload(gateway.RedactSecrets(params)))},
		models.ChangeTransactionInteractionID{TransactionID: tx.ID, InteractionID: interactionID},
	})
	if err != nil {
		return nil, err
	}

	request := params["request"]
	start := time.Now()
	resp, err := e.gateway.Post(ctx, params)
	metrics.GatewayRequestDuration.WithLabelValues(request).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(request, "exception").Inc()
		e.logger.Error("gateway request failed",
			zap.String("payment_id", p.ID),
			zap.String("transaction_id", tx.ID),
			zap.String("request", request),
			zap.Error(err))
		return e.update(ctx, claimed, []models.UpdateAction{
			models.AddInterfaceInteraction{Entry: e.entry(models.InteractionResponse, tx.ID, encodePayload(map[string]string{
				gateway.KeyStatus:       "EXCEPTION",
				gateway.KeyErrorMessage: err.Error(),
			}))},
			models.ChangeTransactionState{TransactionID: tx.ID, State: models.TransactionStateFailure},
		})
	}

	status := resp[gateway.KeyStatus]
	metrics.GatewayRequestsTotal.WithLabelValues(request, status).Inc()

	actions, err := e.responseActions(claimed, tx, resp)
	if err != nil {
		e.logger.Error("unclassifiable gateway response",
			zap.String("payment_id", p.ID),
			zap.String("transaction_id", tx.ID),
			zap.String("status", status))
		return nil, err
	}

	e.logger.Info("gateway request answered",
		zap.String("payment_id", p.ID),
		zap.String("transaction_id", tx.ID),
		zap.String("request", request),
		zap.String("status", status),
		zap.String("interaction_id", interactionID))

	return e.update(ctx, claimed, actions)
}

// responseActions maps a gateway answer to its update bundle.
func (e *IdempotentExecutor) responseActions(p *models.Payment, tx models.Transaction, resp map[string]string) ([]models.UpdateAction, error) {
	payload := encodePayload(resp)
	txid := resp[gateway.KeyTxID]

	var actions []models.UpdateAction
	switch resp[gateway.KeyStatus] {
	case gateway.StatusRedirect:
		actions = append(actions,
			models.AddInterfaceInteraction{Entry: e.entry(models.InteractionRedirect, tx.ID, payload)},
			models.SetCustomField{Name: models.CustomFieldRedirectURL, Value: resp[gateway.KeyRedirectURL]},
		)
	case gateway.StatusApproved:
		actions = append(actions,
			models.AddInterfaceInteraction{Entry: e.entry(models.InteractionResponse, tx.ID, payload)},
			models.ChangeTransactionState{TransactionID: tx.ID, State: models.TransactionStateSuccess},
		)
		if tx.Type == models.TransactionTypeCharge {
			actions = append(actions, models.SetPaidAmount{Amount: tx.Amount})
		} else {
			actions = append(actions, models.SetAuthorizedAmount{Amount: tx.Amount})
		}
	case gateway.StatusError:
		return []models.UpdateAction{
			models.AddInterfaceInteraction{Entry: e.entry(models.InteractionResponse, tx.ID, payload)},
			models.ChangeTransactionState{TransactionID: tx.ID, State: models.TransactionStateFailure},
		}, nil
	case gateway.StatusPending:
		actions = append(actions,
			models.AddInterfaceInteraction{Entry: e.entry(models.InteractionResponse, tx.ID, payload)},
		)
	default:
		return nil, &UnknownStatusError{Status: resp[gateway.KeyStatus], PaymentID: p.ID, TransactionID: tx.ID}
	}

	if txid != "" && txid != p.InterfaceID {
		actions = append(actions, models.SetExternalInterfaceID{InterfaceID: txid})
	}
	return actions, nil
}

func (e *IdempotentExecutor) update(ctx context.Context, p *models.Payment, actions []models.UpdateAction) (*models.Payment, error) {
	updated, err := e.repo.Update(ctx, p.ID, p.Version, actions)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment %s: %w", p.ID, err)
	}
	return updated, nil
}

func (e *IdempotentExecutor) entry(kind models.InteractionKind, transactionID, payload string) models.InteractionEntry {
	return models.InteractionEntry{
		ID:            uuid.New().String(),
		Kind:          kind,
		TransactionID: transactionID,
		Timestamp:     e.now(),
		Payload:       payload,
	}
}

// UnsupportedExecutor fails every transaction it is handed.
type UnsupportedExecutor struct {
	repo   repository.PaymentRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewUnsupportedExecutor(repo repository.PaymentRepository, logger *zap.Logger) *UnsupportedExecutor {
	return &UnsupportedExecutor{repo: repo, logger: logger, now: time.Now}
}

func (e *UnsupportedExecutor) Execute(ctx context.Context, p *models.Payment, tx models.Transaction) (*models.Payment, error) {
	metrics.ExecutorOutcomesTotal.WithLabelValues(string(tx.Type), "unsupported").Inc()
	e.logger.Warn("unsupported transaction",
		zap.String("payment_id", p.ID),
		zap.String("transaction_id", tx.ID),
		zap.String("transaction_type", string(tx.Type)),
		zap.String("method", string(p.Method)))

	updated, err := e.repo.Update(ctx, p.ID, p.Version, []models.UpdateAction{
		models.AddInterfaceInteraction{Entry: models.InteractionEntry{
			ID:            uuid.New().String(),
			Kind:          models.InteractionUnsupported,
			TransactionID: tx.ID,
			Timestamp:     e.now(),
			Payload:       fmt.Sprintf("transaction type %s is not supported for method %s", tx.Type, p.Method),
		}},
		models.ChangeTransactionState{TransactionID: tx.ID, State: models.TransactionStateFailure},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update payment %s: %w", p.ID, err)
	}
	return updated, nil
}

func encodePayload(values map[string]string) string {
	b, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(b)
}
