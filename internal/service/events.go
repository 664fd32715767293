package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
)

const EventPaymentUpdated = "payment.updated"

// EventPublisher is satisfied by pkg/kafka publishers.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

type TransactionSummary struct {
	ID            string                  `json:"id"`
	Type          models.TransactionType  `json:"type"`
	State         models.TransactionState `json:"state"`
	InteractionID string                  `json:"interaction_id,omitempty"`
}

type PaymentEvent struct {
	Type         string               `json:"type"`
	Source       string               `json:"source"`
	PaymentID    string               `json:"payment_id"`
	Version      int64                `json:"version"`
	InterfaceID  string               `json:"interface_id,omitempty"`
	Transactions []TransactionSummary `json:"transactions"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

func newPaymentEvent(source string, p *models.Payment, now time.Time) PaymentEvent {
	summaries := make([]TransactionSummary, len(p.Transactions))
	for i, tx := range p.Transactions {
		summaries[i] = TransactionSummary{
			ID:            tx.ID,
			Type:          tx.Type,
			State:         tx.State,
			InteractionID: tx.InteractionID,
		}
	}
	return PaymentEvent{
		Type:         EventPaymentUpdated,
		Source:       source,
		PaymentID:    p.ID,
		Version:      p.Version,
		InterfaceID:  p.InterfaceID,
		Transactions: summaries,
		OccurredAt:   now,
	}
}

// publishPaymentEvent never fails the caller; the ledger is the source of
// truth and consumers can always re-read it.
func publishPaymentEvent(ctx context.Context, publisher EventPublisher, logger *zap.Logger, source string, p *models.Payment) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, p.ID, newPaymentEvent(source, p, time.Now())); err != nil {
		logger.Warn("failed to publish payment event",
			zap.String("payment_id", p.ID),
			zap.Int64("version", p.Version),
			zap.Error(err))
	}
}
