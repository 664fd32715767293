package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/config"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/gateway"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/repository"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/service"
	"github.com/commercetools/commercetools-payone-integration-sub001/pkg/database"
	"github.com/commercetools/commercetools-payone-integration-sub001/pkg/kafka"
	"github.com/commercetools/commercetools-payone-integration-sub001/pkg/mongodb"
	"github.com/commercetools/commercetools-payone-integration-sub001/pkg/redis"
)

// App holds the wired services shared by the HTTP server and the CLI.
type App struct {
	Repository             repository.PaymentRepository
	TransactionDispatcher  *service.TransactionDispatcher
	NotificationDispatcher *service.NotificationDispatcher
	Payments               *service.PaymentService

	checks  map[string]func(ctx context.Context) error
	closers []func() error
	logger  *zap.Logger
}

// New connects the configured ledger, cache and broker and wires the services
// on top of them.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{
		checks: make(map[string]func(ctx context.Context) error),
		logger: log,
	}

	repo, err := a.openLedger(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var store service.IdempotencyStore
	if cfg.RedisURL != "" {
		redisClient := redis.NewRedisClient(cfg.RedisURL)
		a.closers = append(a.closers, redisClient.Close)
		a.checks["redis"] = redisClient.Ping
		repo = repository.NewCachedPaymentRepository(repo, redisClient, log)
		store = redisClient
	}
	a.Repository = repo

	var publisher kafka.Publisher = kafka.NopPublisher{}
	if cfg.KafkaBroker != "" {
		publisher = kafka.NewProducer(cfg.KafkaBroker, cfg.KafkaTopic)
		log.Info("publishing payment events", zap.String("broker", cfg.KafkaBroker), zap.String("topic", cfg.KafkaTopic))
	}
	a.closers = append(a.closers, publisher.Close)

	client := gateway.NewClient(cfg.PayoneAPIURL, cfg.GatewayTimeout, log)
	requests := gateway.NewRequestFactory(cfg.Credentials(), cfg.RedirectURLs())

	executor := service.NewIdempotentExecutor(repo, client, requests, log)
	registry := service.NewDefaultExecutorRegistry(executor, service.NewUnsupportedExecutor(repo, log))

	a.TransactionDispatcher = service.NewTransactionDispatcher(repo, registry, publisher, log)
	a.NotificationDispatcher = service.NewNotificationDispatcher(repo, service.DefaultProcessors(), cfg.Credentials(), publisher, log)
	a.Payments = service.NewPaymentService(repo, a.TransactionDispatcher, store, log)

	return a, nil
}

func (a *App) openLedger(ctx context.Context, cfg *config.Config) (repository.PaymentRepository, error) {
	switch cfg.LedgerBackend {
	case config.BackendPostgres:
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.checks["postgres"] = db.PingContext
		if err := db.Migrate(ctx, repository.PaymentSchema); err != nil {
			return nil, err
		}
		return repository.NewPostgresPaymentRepository(db.DB), nil

	case config.BackendMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })
		a.checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		repo := repository.NewMongoPaymentRepository(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("failed to create mongo indexes: %w", err)
		}
		return repo, nil

	default:
		a.logger.Warn("using in-memory ledger, payments are lost on restart")
		return repository.NewMemoryPaymentRepository(), nil
	}
}

// Ready runs every dependency check and returns the failures by name.
func (a *App) Ready(ctx context.Context) map[string]string {
	failures := make(map[string]string)
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", zap.Error(err))
		}
	}
}
