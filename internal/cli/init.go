// Package cli holds the start-up steps shared by cmd/weeklytotals and
// cmd/rollover-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"weeklytotals/internal/amqp"
	"weeklytotals/internal/config"
	applog "weeklytotals/internal/log"
	"weeklytotals/internal/notify"
	"weeklytotals/internal/services"
	"weeklytotals/internal/storage"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}
}

// LoadAndValidateConfig loads and validates configuration.
func LoadAndValidateConfig(configFile string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger installs the default logger described by cfg.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	return applog.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr).WithComponent(component)
}

// App is the wired ledger: store, notifier and the services on top of them.
type App struct {
	Config     *config.Config
	Logger     *applog.Logger
	Notifier   *notify.Notifier
	Store      *storage.SQLiteRepository
	Aggregator *services.Aggregator
	Reconciler *services.Reconciler
	Categories *services.CategoryService
	Rollover   *services.RolloverProcessor
	AMQP       *amqp.Client

	closers []func()
}

// NewApp opens the store and wires the services. The AMQP client is only
// dialled when withAMQP is set and AMQP_URL is configured.
func NewApp(ctx context.Context, cfg *config.Config, logger *applog.Logger, withAMQP bool) (*App, error) {
	n := notify.New(logger.WithComponent(applog.ComponentNotify).Slog())

	store, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, storage.WithNotifier(n))
	if err != nil {
		return nil, fmt.Errorf("initialize SQLite repository at %s: %w", cfg.SQLiteDBPath, err)
	}

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Notifier:   n,
		Store:      store,
		Reconciler: services.NewReconciler(store),
		Categories: services.NewCategoryService(store),
	}
	app.Aggregator = services.NewAggregator(store, n, services.AggregatorOptions{
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	})
	app.Rollover = services.NewRolloverProcessor(store, app.Reconciler, store, cfg.WeeklyBudget)
	app.closers = append(app.closers, app.Aggregator.Close)

	if withAMQP && cfg.AMQPEnabled() {
		if err := app.ConnectAMQP(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

// ConnectAMQP dials the configured broker. It is a no-op when AMQP is
// disabled or already connected.
func (a *App) ConnectAMQP(ctx context.Context) error {
	if a.AMQP != nil || !a.Config.AMQPEnabled() {
		return nil
	}
	client, err := amqp.NewClient(ctx, amqp.Config{
		URL:      a.Config.AMQPURL,
		Exchange: a.Config.AMQPExchange,
		Queue:    a.Config.AMQPQueue,
	})
	if err != nil {
		return fmt.Errorf("connect to AMQP: %w", err)
	}
	a.AMQP = client
	return nil
}

// Close releases everything NewApp opened.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.AMQP != nil {
		if err := a.AMQP.Close(); err != nil {
			a.Logger.Warn("Failed to close AMQP client", applog.FieldError, err)
		}
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("Failed to close SQLite repository", applog.FieldError, err)
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
