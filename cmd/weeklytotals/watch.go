package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"weeklytotals/internal/amqp"
	"weeklytotals/internal/cache"
	"weeklytotals/internal/cli"
	"weeklytotals/internal/core"
	applog "weeklytotals/internal/log"
	"weeklytotals/internal/notify"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print ledger changes published by other processes",
	Long: `Consumes the change queue and prints every committed ledger change
together with the refreshed total of the current week. Needs AMQP_URL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.AMQPEnabled() {
			return errors.New("watch needs AMQP_URL to be set")
		}

		ctx := cmd.Context()
		app, err := cli.NewApp(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		unsubscribe := app.Notifier.Subscribe(nil, func(c notify.Change) {
			fmt.Fprintf(out, "%s local change: %s\n", c.Timestamp.Local().Format(time.TimeOnly), strings.Join(c.Tables, ", "))
		})
		defer unsubscribe()

		logger.Info("Watching ledger changes", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

		g, ctx := errgroup.WithContext(ctx)

		manager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Slog())
		for _, c := range app.Aggregator.Caches() {
			manager.Register(c)
		}
		manager.Start(ctx, cfg.CacheTTL+time.Minute)
		defer manager.Wait()

		g.Go(func() error {
			return app.AMQP.ConsumeChanges(ctx, func(msg *amqp.ChangeMessage) error {
				// Another process wrote; cached totals are stale.
				app.Aggregator.Invalidate()
				return printChange(ctx, out, app, msg)
			})
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Watch stopped", applog.FieldError, err)
			return err
		}
		return nil
	},
}

func printChange(ctx context.Context, out io.Writer, app *cli.App, msg *amqp.ChangeMessage) error {
	week := core.WeekStart(time.Now())
	total, err := app.Aggregator.WeeklyTotal(ctx, week)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s %s changed, week of %s total %s\n",
		msg.Timestamp.Local().Format(time.TimeOnly),
		strings.Join(msg.Tables, ", "),
		week,
		core.FormatAmount(total))
	return err
}
