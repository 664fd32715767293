package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/repository"
)

func appointedNotification() models.Notification {
	return notification(map[string]string{
		"txaction":           "appointed",
		"sequencenumber":     "0",
		"price":              "20.00",
		"clearingtype":       "cc",
		"reference":          "order-1",
		"transaction_status": "completed",
	})
}

func TestNotificationDispatcher_FirstAuthorization(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	publisher := &recordingPublisher{}
	dispatcher := newTestNotificationDispatcher(repo, publisher)

	got, err := dispatcher.Dispatch(context.Background(), appointedNotification())
	require.NoError(t, err)

	assert.Equal(t, models.MethodCreditCard, got.Method)
	assert.Equal(t, "123456789", got.InterfaceID)
	assert.Equal(t, "order-1", got.Reference)
	assert.True(t, got.AmountPlanned.Equal(eur("20.00")))

	require.Len(t, got.Transactions, 1)
	tx := got.Transactions[0]
	assert.Equal(t, models.TransactionTypeAuthorization, tx.Type)
	assert.Equal(t, models.TransactionStateSuccess, tx.State)
	assert.Equal(t, "0", tx.InteractionID)
	assert.Equal(t, 1, countKind(got, models.InteractionNotification))

	require.Len(t, publisher.events, 1)
	assert.Equal(t, got.ID, publisher.events[0].PaymentID)
}

func TestNotificationDispatcher_ResolvesExistingPayment(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	dispatcher := newTestNotificationDispatcher(repo, nil)
	ctx := context.Background()

	first, err := dispatcher.Dispatch(ctx, appointedNotification())
	require.NoError(t, err)

	paid := notification(map[string]string{"txaction": "paid", "sequencenumber": "1", "price": "20.00"})
	second, err := dispatcher.Dispatch(ctx, paid)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Transactions, 2)
	assert.Equal(t, 2, countKind(second, models.InteractionNotification))
}

func TestNotificationDispatcher_DefaultProcessor(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	dispatcher := newTestNotificationDispatcher(repo, nil)

	got, err := dispatcher.Dispatch(context.Background(), notification(map[string]string{
		"txaction":       "reminder",
		"sequencenumber": "2",
		"clearingtype":   "rec",
	}))
	require.NoError(t, err)

	assert.Empty(t, got.Transactions)
	require.Len(t, got.Interactions, 1)
	assert.Equal(t, string(models.ActionReminder), got.Interactions[0].NotificationAction)
	assert.Equal(t, models.MethodInvoice, got.Method)
}

func TestNotificationDispatcher_Authentication(t *testing.T) {
	tests := []struct {
		name       string
		override   map[string]string
		wantFields []string
	}{
		{name: "wrong key", override: map[string]string{"key": "5ebe2294ecd0e0f08eab7690d2a6ee6a"}, wantFields: []string{"key"}},
		{name: "wrong portal", override: map[string]string{"portalid": "1"}, wantFields: []string{"portalid"}},
		{name: "wrong sub account", override: map[string]string{"aid": "1"}, wantFields: []string{"aid"}},
		{name: "live mode", override: map[string]string{"mode": "live"}, wantFields: []string{"mode"}},
		{name: "missing txid", override: map[string]string{"txid": ""}, wantFields: []string{"txid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repository.NewMemoryPaymentRepository()
			dispatcher := newTestNotificationDispatcher(repo, nil)

			pairs := map[string]string{"txaction": "appointed", "sequencenumber": "0", "price": "20.00"}
			for k, v := range tt.override {
				pairs[k] = v
			}

			_, err := dispatcher.Dispatch(context.Background(), notification(pairs))

			var validation *ValidationError
			require.True(t, errors.As(err, &validation), "got %v", err)
			assert.Equal(t, tt.wantFields, validation.Fields)

			_, err = repo.FindByInterfaceID(context.Background(), models.InterfaceNamePayone, "123456789")
			assert.ErrorIs(t, err, repository.ErrNotFound)
		})
	}
}

func TestNotificationDispatcher_ConflictRetry(t *testing.T) {
	tests := []struct {
		name        string
		conflicts   int
		wantErr     bool
		wantUpdates int
	}{
		{name: "first attempt wins", conflicts: 0, wantUpdates: 1},
		{name: "retry after one conflict", conflicts: 1, wantUpdates: 2},
		{name: "give up after second conflict", conflicts: 2, wantErr: true, wantUpdates: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memory := repository.NewMemoryPaymentRepository()
			ctx := context.Background()
			existing, err := memory.Create(ctx, &models.PaymentDraft{
				Method:        models.MethodCreditCard,
				InterfaceID:   "123456789",
				AmountPlanned: eur("20.00"),
			})
			require.NoError(t, err)

			repo := &interferingRepository{PaymentRepository: memory, conflicts: tt.conflicts}
			dispatcher := newTestNotificationDispatcher(repo, nil)

			_, err = dispatcher.Dispatch(ctx, appointedNotification())
			assert.Equal(t, tt.wantUpdates, repo.updates)

			stored, getErr := memory.Get(ctx, existing.ID)
			require.NoError(t, getErr)

			if tt.wantErr {
				var conflict *ConflictError
				require.True(t, errors.As(err, &conflict))
				assert.False(t, conflict.Retryable)
				assert.Equal(t, existing.ID, conflict.PaymentID)
				assert.ErrorIs(t, err, repository.ErrVersionConflict)
				assert.Empty(t, stored.Transactions)
				assert.Zero(t, countKind(stored, models.InteractionNotification))
				return
			}

			require.NoError(t, err)
			assert.Len(t, stored.Transactions, 1)
			assert.Equal(t, 1, countKind(stored, models.InteractionNotification))
		})
	}
}

func TestNotificationDispatcher_IllegalStateIsNotRetried(t *testing.T) {
	memory := repository.NewMemoryPaymentRepository()
	repo := &interferingRepository{PaymentRepository: memory}
	dispatcher := newTestNotificationDispatcher(repo, nil)

	_, err := dispatcher.Dispatch(context.Background(), notification(map[string]string{
		"txaction":       "appointed",
		"sequencenumber": "abc",
		"price":          "20.00",
	}))

	var illegal *IllegalStateError
	require.True(t, errors.As(err, &illegal))
	assert.Zero(t, repo.updates)
}

func TestNotificationDispatcher_NotificationCompletesExecutorClaim(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	gw := &fakeGateway{}
	executor := newTestExecutor(repo, gw)
	dispatcher := newTestNotificationDispatcher(repo, nil)
	ctx := context.Background()

	tx := pendingTx("tx-auth", models.TransactionTypeAuthorization)
	tx.InteractionID = "0"
	p := seedPayment(repo, models.MethodCreditCard, []models.Transaction{tx},
		[]models.InteractionEntry{requestEntry(tx.ID, testNow.Add(-20*time.Minute))})
	_, err := repo.Update(ctx, p.ID, p.Version, []models.UpdateAction{
		models.SetExternalInterfaceID{InterfaceID: "123456789"},
	})
	require.NoError(t, err)

	notified, err := dispatcher.Dispatch(ctx, appointedNotification())
	require.NoError(t, err)

	after, _ := notified.Transaction(tx.ID)
	assert.Equal(t, models.TransactionStateSuccess, after.State)

	// The abandoned request is now answered by the notification.
	got, err := executor.Execute(ctx, notified, after)
	require.NoError(t, err)
	assert.Equal(t, notified.Version, got.Version)
	assert.Zero(t, gw.calls())
}
