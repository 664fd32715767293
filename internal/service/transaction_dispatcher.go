package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/metrics"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/repository"
)

// TransactionDispatcher advances a payment's transactions in list order until
// one of them has to wait for an external event.
type TransactionDispatcher struct {
	repo      repository.PaymentRepository
	registry  *ExecutorRegistry
	publisher EventPublisher
	logger    *zap.Logger
}

func NewTransactionDispatcher(repo repository.PaymentRepository, registry *ExecutorRegistry, publisher EventPublisher, logger *zap.Logger) *TransactionDispatcher {
	return &TransactionDispatcher{
		repo:      repo,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
	}
}

// DispatchByID loads the payment and runs one dispatch pass over it.
func (d *TransactionDispatcher) DispatchByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, err := d.repo.Get(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}
	return d.Dispatch(ctx, p)
}

// Dispatch hands the first non-terminal transaction to its executor and keeps
// going while transactions turn terminal. The transaction state is always
// re-read from the payment the executor returned.
func (d *TransactionDispatcher) Dispatch(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	current := p
	startVersion := p.Version

	for {
		tx, ok := current.FirstNonTerminal()
		if !ok {
			break
		}

		executor := d.registry.Lookup(current.Method, tx.Type)
		next, err := executor.Execute(ctx, current, tx)
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				metrics.LedgerConflictsTotal.WithLabelValues("transaction_dispatcher", "false").Inc()
				return nil, &ConflictError{PaymentID: p.ID, Retryable: true, Err: err}
			}
			return nil, err
		}
		current = next

		after, ok := current.Transaction(tx.ID)
		if !ok {
			return nil, fmt.Errorf("transaction %s vanished from payment %s", tx.ID, current.ID)
		}
		if !after.State.IsTerminal() {
			d.logger.Debug("transaction waiting for gateway",
				zap.String("payment_id", current.ID),
				zap.String("transaction_id", tx.ID),
				zap.String("interaction_id", after.InteractionID))
			break
		}

		d.logger.Info("transaction finished",
			zap.String("payment_id", current.ID),
			zap.String("transaction_id", tx.ID),
			zap.String("transaction_type", string(tx.Type)),
			zap.String("state", string(after.State)))
	}

	if current.Version != startVersion {
		publishPaymentEvent(ctx, d.publisher, d.logger, "dispatcher", current)
	}
	return current, nil
}
