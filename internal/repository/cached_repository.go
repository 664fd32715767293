package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
)

// KeyValueStore is the part of the redis client the cache needs.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedPaymentRepository remembers interface id -> payment id so that
// notifications skip the secondary-index query. Payments themselves are never
// cached: every read still hits the ledger and sees the current version.
type CachedPaymentRepository struct {
	PaymentRepository
	store  KeyValueStore
	logger *zap.Logger
	ttl    time.Duration
}

func NewCachedPaymentRepository(inner PaymentRepository, store KeyValueStore, logger *zap.Logger) *CachedPaymentRepository {
	return &CachedPaymentRepository{
		PaymentRepository: inner,
		store:             store,
		logger:            logger,
		ttl:               24 * time.Hour,
	}
}

func (r *CachedPaymentRepository) FindByInterfaceID(ctx context.Context, interfaceName, interfaceID string) (*models.Payment, error) {
	key := r.cacheKey(interfaceName, interfaceID)

	if id, err := r.store.Get(ctx, key); err == nil && id != "" {
		p, err := r.PaymentRepository.Get(ctx, id)
		if err == nil && p.InterfaceName == interfaceName && p.InterfaceID == interfaceID {
			return p, nil
		}
		r.logger.Debug("evicting stale interface id cache entry", zap.String("key", key))
		if err := r.store.Delete(ctx, key); err != nil {
			r.logger.Warn("failed to evict interface id cache entry",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	p, err := r.PaymentRepository.FindByInterfaceID(ctx, interfaceName, interfaceID)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, p)
	return p, nil
}

func (r *CachedPaymentRepository) Create(ctx context.Context, draft *models.PaymentDraft) (*models.Payment, error) {
	p, err := r.PaymentRepository.Create(ctx, draft)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, p)
	return p, nil
}

func (r *CachedPaymentRepository) Update(ctx context.Context, id string, version int64, actions []models.UpdateAction) (*models.Payment, error) {
	p, err := r.PaymentRepository.Update(ctx, id, version, actions)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, p)
	return p, nil
}

func (r *CachedPaymentRepository) remember(ctx context.Context, p *models.Payment) {
	if p.InterfaceID == "" {
		return
	}
	key := r.cacheKey(p.InterfaceName, p.InterfaceID)
	if err := r.store.Set(ctx, key, p.ID, r.ttl); err != nil {
		r.logger.Warn("failed to cache interface id",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (r *CachedPaymentRepository) cacheKey(interfaceName, interfaceID string) string {
	return fmt.Sprintf("payment:interface:%s:%s", interfaceName, interfaceID)
}
