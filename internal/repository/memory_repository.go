package repository

import (
	"context"
	"sync"
	"time"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
)

// MemoryPaymentRepository keeps payments in process memory. The mutex only
// makes the compare-and-swap atomic; it never spans a caller's read-modify-write.
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*models.Payment
	now      func() time.Time
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments: make(map[string]*models.Payment),
		now:      time.Now,
	}
}

func (r *MemoryPaymentRepository) Get(ctx context.Context, id string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryPaymentRepository) FindByInterfaceID(ctx context.Context, interfaceName, interfaceID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if p.InterfaceName == interfaceName && p.InterfaceID == interfaceID && interfaceID != "" {
			return p.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryPaymentRepository) Create(ctx context.Context, draft *models.PaymentDraft) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if draft.InterfaceID != "" {
		for _, p := range r.payments {
			if p.InterfaceName == draft.InterfaceName && p.InterfaceID == draft.InterfaceID {
				return nil, ErrAlreadyExists
			}
		}
	}

	p := newPayment(draft, r.now())
	r.payments[p.ID] = p
	return p.Clone(), nil
}

func (r *MemoryPaymentRepository) Update(ctx context.Context, id string, version int64, actions []models.UpdateAction) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if current.Version != version {
		return nil, ErrVersionConflict
	}

	next, err := nextVersion(current, actions, r.now())
	if err != nil {
		return nil, err
	}
	r.payments[id] = next
	return next.Clone(), nil
}

// Put stores p as-is. Tests use it to seed payments with a prepared history.
func (r *MemoryPaymentRepository) Put(p *models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p.Clone()
}
