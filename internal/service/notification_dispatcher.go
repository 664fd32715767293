package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/gateway"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/metrics"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/repository"
)

// maxApplyAttempts is the first try plus one retry after a conflict.
const maxApplyAttempts = 2

// NotificationDispatcher authenticates a notification, resolves its payment
// and applies what the matching processor derives from it.
type NotificationDispatcher struct {
	repo        repository.PaymentRepository
	processors  map[models.NotificationAction]NotificationProcessor
	fallback    NotificationProcessor
	credentials gateway.Credentials
	publisher   EventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

func NewNotificationDispatcher(
	repo repository.PaymentRepository,
	processors map[models.NotificationAction]NotificationProcessor,
	credentials gateway.Credentials,
	publisher EventPublisher,
	logger *zap.Logger,
) *NotificationDispatcher {
	return &NotificationDispatcher{
		repo:        repo,
		processors:  processors,
		fallback:    DefaultProcessor{},
		credentials: credentials,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}
}

// Dispatch handles one notification end to end. A version conflict causes
// exactly one fresh resolve and apply; a second conflict is returned as a
// non-retryable *ConflictError.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, n models.Notification) (*models.Payment, error) {
	action := string(n.Action)

	if err := d.authenticate(n); err != nil {
		metrics.NotificationsTotal.WithLabelValues(action, "rejected").Inc()
		d.logger.Warn("notification rejected",
			zap.String("txid", n.TxID),
			zap.String("action", action),
			zap.Error(err))
		return nil, err
	}

	receivedAt := d.now()
	var lastErr error
	var paymentID string
	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		p, resolvedID, err := d.apply(ctx, n, receivedAt)
		if err == nil {
			metrics.NotificationsTotal.WithLabelValues(action, "applied").Inc()
			d.logger.Info("notification applied",
				zap.String("payment_id", p.ID),
				zap.String("txid", n.TxID),
				zap.String("action", action),
				zap.String("sequence_number", n.SequenceNumber),
				zap.Int64("version", p.Version),
				zap.Int("attempt", attempt))
			publishPaymentEvent(ctx, d.publisher, d.logger, "notification", p)
			return p, nil
		}
		if !isConflict(err) {
			metrics.NotificationsTotal.WithLabelValues(action, "failed").Inc()
			return nil, err
		}

		lastErr = err
		if resolvedID != "" {
			paymentID = resolvedID
		}
		retried := attempt < maxApplyAttempts
		metrics.LedgerConflictsTotal.WithLabelValues("notification_dispatcher", strconv.FormatBool(retried)).Inc()
		d.logger.Warn("ledger conflict while applying notification",
			zap.String("payment_id", resolvedID),
			zap.String("txid", n.TxID),
			zap.String("action", action),
			zap.Int("attempt", attempt),
			zap.Bool("retrying", retried),
			zap.Error(err))
	}

	metrics.NotificationsTotal.WithLabelValues(action, "conflict").Inc()
	return nil, &ConflictError{PaymentID: paymentID, Retryable: false, Err: lastErr}
}

// apply returns the id of the payment it resolved alongside any error, so a
// conflict can be reported against the ledger payment rather than the txid.
func (d *NotificationDispatcher) apply(ctx context.Context, n models.Notification, receivedAt time.Time) (*models.Payment, string, error) {
	p, err := d.resolve(ctx, n)
	if err != nil {
		return nil, "", err
	}

	processor, ok := d.processors[n.Action]
	if !ok {
		processor = d.fallback
	}

	actions, err := processor.Process(p, n, receivedAt)
	if err != nil {
		return nil, p.ID, err
	}

	d.logger.Debug("applying notification actions",
		zap.String("payment_id", p.ID),
		zap.Strings("actions", models.ActionNames(actions)))

	updated, err := d.repo.Update(ctx, p.ID, p.Version, actions)
	if err != nil {
		return nil, p.ID, fmt.Errorf("failed to update payment %s: %w", p.ID, err)
	}
	return updated, p.ID, nil
}

// resolve finds the payment the notification is about, or creates a shell for
// payments the gateway knows and the ledger does not.
func (d *NotificationDispatcher) resolve(ctx context.Context, n models.Notification) (*models.Payment, error) {
	p, err := d.repo.FindByInterfaceID(ctx, models.InterfaceNamePayone, n.TxID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to find payment for txid %s: %w", n.TxID, err)
	}

	planned := models.Money{Currency: n.Currency}
	if price, err := n.PriceMoney(); err == nil {
		planned = price
	}

	p, err = d.repo.Create(ctx, &models.PaymentDraft{
		Reference:     n.Reference,
		Method:        models.MethodFromClearingType(n.ClearingType),
		InterfaceName: models.InterfaceNamePayone,
		InterfaceID:   n.TxID,
		AmountPlanned: planned,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment for txid %s: %w", n.TxID, err)
	}

	d.logger.Info("created payment from notification",
		zap.String("payment_id", p.ID),
		zap.String("txid", n.TxID),
		zap.String("method", string(p.Method)))
	return p, nil
}

func (d *NotificationDispatcher) authenticate(n models.Notification) error {
	var mismatched []string
	if !equalConstantTime(n.Key, d.credentials.KeyHash()) {
		mismatched = append(mismatched, "key")
	}
	if !equalConstantTime(n.PortalID, d.credentials.PortalID) {
		mismatched = append(mismatched, "portalid")
	}
	if !equalConstantTime(n.AID, d.credentials.SubAccountID) {
		mismatched = append(mismatched, "aid")
	}
	if !equalConstantTime(n.Mode, d.credentials.Mode) {
		mismatched = append(mismatched, "mode")
	}
	if len(mismatched) > 0 {
		return &ValidationError{Fields: mismatched, Reason: "identity does not match this installation"}
	}
	if n.TxID == "" {
		return &ValidationError{Fields: []string{"txid"}, Reason: "missing transaction id"}
	}
	return nil
}

func equalConstantTime(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
