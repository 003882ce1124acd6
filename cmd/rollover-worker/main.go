package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"golang.org/x/sync/errgroup"

	"weeklytotals/internal/cli"
	applog "weeklytotals/internal/log"
	"weeklytotals/internal/services"
	"weeklytotals/internal/worker"
)

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig(*configFile)
	if err != nil {
		applog.New(applog.DefaultConfig()).Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, applog.ComponentRollover)

	logger.Info("Starting rollover-worker",
		"interval", cfg.RolloverInterval,
		"default_weekly_budget", cfg.WeeklyBudget.StringFixed(2),
		"sqlite_db", cfg.SQLiteDBPath)

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	app, err := cli.NewApp(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("Failed to start", applog.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	g, ctx := errgroup.WithContext(ctx)

	if app.AMQP != nil {
		publisher := services.NewChangePublisher(app.AMQP, 0)
		unsubscribe := publisher.Attach(app.Notifier)
		defer unsubscribe()
		g.Go(func() error { return publisher.Run(ctx) })
		logger.Info("AMQP enabled, publishing ledger changes", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled, ledger changes stay local")
	}

	rollover := worker.NewRolloverWorker(app.Rollover, logger, cfg.RolloverInterval)
	g.Go(func() error { return rollover.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Rollover-worker stopped with error", applog.FieldError, err)
	}
	logger.Info("Rollover-worker shutdown complete")
}
