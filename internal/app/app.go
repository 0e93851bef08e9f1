// Package app wires the executor, its collaborators and the optional run journal
// into one explicit application context.
package app

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/config"
	"aptoswarm/internal/database"
	"aptoswarm/internal/events"
	"aptoswarm/internal/models"
	"aptoswarm/internal/module"
	"aptoswarm/internal/observability"
	"aptoswarm/internal/service"
	"aptoswarm/internal/storage"
	"aptoswarm/internal/tasks"
	"aptoswarm/internal/wallet"
	"aptoswarm/internal/worker"
)

// DefaultMigrationPath is the schema applied when a database is configured
const DefaultMigrationPath = "internal/database/migrations/001_schema.sql"

// App is the application context shared by the binaries
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Events   *events.Manager
	Storage  *storage.ExecutionStorage
	Clients  *aptos.ClientPool
	Modules  *module.Registry
	Executor *worker.Executor
	Runs     *worker.RunManager
	Monitor  *worker.StatusMonitor
	Metrics  *observability.Metrics
	Fees     *service.FeeService
	Journal  *service.Journal

	Wallets *wallet.Registry
	Queue   *tasks.Queue

	db *database.DB
}

type options struct {
	migrationPath string
	proxyCheck    bool
	observers     []worker.RunObserver
}

// Option customizes New
type Option func(*options)

// WithMigrationPath overrides the schema file location
func WithMigrationPath(path string) Option {
	return func(o *options) { o.migrationPath = path }
}

// WithoutProxyCheck disables proxy validation before each task
func WithoutProxyCheck() Option {
	return func(o *options) { o.proxyCheck = false }
}

// WithRunObserver adds an observer told about run starts and finishes
func WithRunObserver(obs worker.RunObserver) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// New builds the application context. The run journal is enabled when a database is configured.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{migrationPath: DefaultMigrationPath, proxyCheck: true}
	for _, opt := range opts {
		opt(&o)
	}

	pool, err := aptos.NewClientPool(cfg.Aptos.RPCEndpoint, cfg.Aptos.RequestTimeout, cfg.Aptos.ExpirationTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create aptos client: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Events:  events.NewManager(logger),
		Storage: storage.NewExecutionStorage(),
		Clients: pool,
		Wallets: wallet.NewRegistry(),
		Queue:   tasks.NewQueue(),
	}

	clients := func(w *models.Wallet) module.ChainClient { return a.Clients.ForWallet(w) }
	lifecycle := module.NewLifecycle(clients, a.Storage, cfg.Protocols, module.LifecycleConfigFrom(cfg.Executor), logger)
	a.Modules = module.NewRegistry(lifecycle)

	var proxies worker.ProxyChecker
	if o.proxyCheck {
		proxies = wallet.NewProxyValidator(cfg.Aptos.ProxyCheckURL, cfg.Aptos.RequestTimeout, logger)
	}

	retry := worker.NewRetryPolicy(cfg.Executor.RetryInterval, logger)
	a.Executor = worker.NewExecutor(a.Modules, retry, a.Events, proxies, cfg.Executor, logger)
	a.Monitor = worker.NewStatusMonitor(a.Events)
	a.Metrics = observability.NewMetrics("aptoswarm")
	a.Metrics.Attach(a.Events)
	a.Fees = service.NewFeeService(a.Clients.Default(), logger)

	observers := []worker.RunObserver{a.Monitor, a.Metrics}

	if cfg.Database.Enabled() {
		db, err := database.Connect(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Database connected successfully", zap.String("db_host", cfg.Database.Host))

		if err := migrate(db, o.migrationPath); err != nil {
			return nil, err
		}
		logger.Info("Database migrations applied successfully")

		a.db = db
		a.Journal = service.NewJournal(db, a.Events, logger)
		observers = append(observers, a.Journal)
	} else {
		logger.Info("No database configured, run journal disabled")
	}

	observers = append(observers, o.observers...)
	a.Runs = worker.NewRunManager(a.Executor, a.Events, a.Storage, logger, observers...)

	return a, nil
}

// migrate applies the schema and closes db when it cannot
func migrate(db *database.DB, path string) error {
	if err := database.RunMigrations(db, path); err != nil {
		return multierr.Append(fmt.Errorf("failed to apply migrations: %w", err), db.Close())
	}
	return nil
}

// Close stops the active run and releases the database
func (a *App) Close(timeout time.Duration) error {
	var err error
	err = multierr.Append(err, a.Runs.Shutdown(timeout))
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	return err
}
