// Package app wires the charge pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AnuragDani/subscription-charger/internal/cache"
	"github.com/AnuragDani/subscription-charger/internal/charge"
	"github.com/AnuragDani/subscription-charger/internal/config"
	"github.com/AnuragDani/subscription-charger/internal/database"
	"github.com/AnuragDani/subscription-charger/internal/events"
	"github.com/AnuragDani/subscription-charger/internal/gateway"
	"github.com/AnuragDani/subscription-charger/internal/ledger"
	"github.com/AnuragDani/subscription-charger/internal/metrics"
	"github.com/AnuragDani/subscription-charger/internal/notify"
	"github.com/AnuragDani/subscription-charger/internal/renewal"
	"github.com/AnuragDani/subscription-charger/internal/store"
)

// App holds the wired charge pipeline and the resources behind it
type App struct {
	DB           *database.DB
	Redis        *cache.Client // nil when REDIS_URL is unset
	Store        *store.PostgresStore
	Ledger       *ledger.PostgresLedger
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Orchestrator *charge.Orchestrator

	closers []func()
	logger  *slog.Logger
}

// New connects to every configured dependency and builds the orchestrator
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, func() { db.Close() })
	logger.Info("database connection established")

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Warn("failed to ensure schema", "error", err)
	}

	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, func() { client.Close() })
		logger.Info("redis connection established")
	}

	attemptPolicy, err := cfg.AttemptPolicy()
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := a.notifier(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	a.Store = store.NewPostgresStore(db.Conn)
	a.Ledger = ledger.NewPostgresLedger(db.Conn)

	renewals := renewal.DefaultRegistry(a.Store)
	logger.Info("renewal effectors registered", "package_types", renewals.Types())

	validator := charge.NewValidator(attemptPolicy, notifier, cfg.NotificationRecipient, logger)
	transitioner := charge.NewTransitioner(charge.TransitionerConfig{
		Store:     a.Store,
		Ledger:    a.Ledger,
		Renewals:  renewals,
		Policy:    attemptPolicy,
		Events:    events.NewDispatcher(logger, a.listeners(cfg)...),
		Notifier:  notifier,
		Recipient: cfg.NotificationRecipient,
		Logger:    logger,
	})

	orchestratorCfg := charge.OrchestratorConfig{
		Store:          a.Store,
		Ledger:         a.Ledger,
		Gateway:        gateway.NewClient(cfg.GatewayName, cfg.GatewayURL, cfg.GatewayTimeout),
		Validator:      validator,
		Transitioner:   transitioner,
		Metrics:        a.Metrics,
		Logger:         logger,
		PayAccount:     cfg.PayAccount,
		BatchSize:      cfg.BatchSize,
		GatewayTimeout: cfg.GatewayTimeout,
	}
	if a.Redis != nil {
		orchestratorCfg.Locker = cache.NewChargeLocker(a.Redis, cfg.LockTTL)
	}
	a.Orchestrator = charge.NewOrchestrator(orchestratorCfg)

	return a, nil
}

func (a *App) notifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.AMQPURL == "" {
		a.logger.Info("AMQP_URL not set, notifications go to the log")
		return notify.NewLogNotifier(a.logger), nil
	}

	n, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.NotificationExchange, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up notifier: %w", err)
	}
	a.closers = append(a.closers, n.Close)
	a.logger.Info("publishing notifications to AMQP", "exchange", cfg.NotificationExchange)
	return n, nil
}

func (a *App) listeners(cfg *config.Config) []events.Listener {
	var listeners []events.Listener
	if a.Redis != nil {
		listeners = append(listeners, cache.NewRedisEventListener(a.Redis, cfg.EventChannel))
	}
	if cfg.EventWebhookURL != "" {
		listeners = append(listeners, events.NewWebhookListener(cfg.EventWebhookURL))
	}
	return listeners
}

// Close releases every resource in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
