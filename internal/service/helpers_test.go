package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/gateway"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/repository"
)

var testCredentials = gateway.Credentials{
	MerchantID:   "42",
	PortalID:     "2000001",
	SubAccountID: "30001",
	Key:          "secret",
	Mode:         "test",
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeGateway answers every request with the next queued response and counts
// the calls it received.
type fakeGateway struct {
	mu        sync.Mutex
	responses []map[string]string
	err       error
	requests  []map[string]string
}

func (g *fakeGateway) Post(_ context.Context, params map[string]string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, params)
	if g.err != nil {
		return nil, g.err
	}
	if len(g.responses) == 0 {
		return map[string]string{gateway.KeyStatus: gateway.StatusPending}, nil
	}
	resp := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return resp, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func approved(txid string) map[string]string {
	return map[string]string{gateway.KeyStatus: gateway.StatusApproved, gateway.KeyTxID: txid}
}

// interferingRepository lets a concurrent writer win the first conflicts
// Update calls: it changes the payment under the caller and reports a
// version conflict.
type interferingRepository struct {
	repository.PaymentRepository
	conflicts int
	updates   int
}

func (r *interferingRepository) Update(ctx context.Context, id string, version int64, actions []models.UpdateAction) (*models.Payment, error) {
	r.updates++
	if r.conflicts > 0 {
		r.conflicts--
		if _, err := r.PaymentRepository.Update(ctx, id, version, []models.UpdateAction{
			models.SetCustomField{Name: "touchedBy", Value: "concurrent-writer"},
		}); err != nil {
			return nil, err
		}
		return nil, repository.ErrVersionConflict
	}
	return r.PaymentRepository.Update(ctx, id, version, actions)
}

type recordingPublisher struct {
	events []PaymentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, value interface{}) error {
	if event, ok := value.(PaymentEvent); ok {
		p.events = append(p.events, event)
	}
	return nil
}

func eur(amount string) models.Money {
	return models.Money{Amount: decimal.RequireFromString(amount), Currency: "EUR"}
}

// seedPayment stores a payment with the given transactions and log entries.
func seedPayment(repo *repository.MemoryPaymentRepository, method models.PaymentMethod, txs []models.Transaction, log []models.InteractionEntry) *models.Payment {
	p := &models.Payment{
		ID:            "payment-1",
		Version:       1,
		Reference:     "order-1",
		Method:        method,
		InterfaceName: models.InterfaceNamePayone,
		AmountPlanned: eur("20.00"),
		Transactions:  txs,
		Interactions:  log,
		CreatedAt:     testNow.Add(-time.Hour),
		UpdatedAt:     testNow.Add(-time.Hour),
	}
	repo.Put(p)
	return p.Clone()
}

func pendingTx(id string, txType models.TransactionType) models.Transaction {
	return models.Transaction{
		ID:        id,
		Type:      txType,
		State:     models.TransactionStatePending,
		Amount:    eur("20.00"),
		Timestamp: testNow.Add(-time.Hour),
	}
}

func newTestExecutor(repo repository.PaymentRepository, gw gateway.Poster) *IdempotentExecutor {
	requests := gateway.NewRequestFactory(testCredentials, gateway.RedirectURLs{
		Success: "https://shop.example/payments/%s/success",
		Error:   "https://shop.example/payments/%s/error",
		Back:    "https://shop.example/payments/%s/back",
	})
	e := NewIdempotentExecutor(repo, gw, requests, zap.NewNop())
	e.now = func() time.Time { return testNow }
	return e
}

func newTestNotificationDispatcher(repo repository.PaymentRepository, publisher EventPublisher) *NotificationDispatcher {
	d := NewNotificationDispatcher(repo, DefaultProcessors(), testCredentials, publisher, zap.NewNop())
	d.now = func() time.Time { return testNow }
	return d
}

// notification builds an authenticated notification from the given pairs.
func notification(pairs map[string]string) models.Notification {
	values := map[string]string{
		"key":      testCredentials.KeyHash(),
		"portalid": testCredentials.PortalID,
		"aid":      testCredentials.SubAccountID,
		"mode":     testCredentials.Mode,
		"txid":     "123456789",
		"currency": "EUR",
	}
	for k, v := range pairs {
		values[k] = v
	}
	return models.NewNotification(values)
}

func countKind(p *models.Payment, kind models.InteractionKind) int {
	n := 0
	for _, e := range p.Interactions {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
