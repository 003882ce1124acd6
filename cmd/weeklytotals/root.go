package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"weeklytotals/internal/cli"
	"weeklytotals/internal/config"
	"weeklytotals/internal/core"
	applog "weeklytotals/internal/log"
	"weeklytotals/internal/services"
)

var (
	configFile string
	weekFlag   string
)

var rootCmd = &cobra.Command{
	Use:           "weeklytotals",
	Short:         "Weekly spending ledger",
	Long:          `Records weekly transactions, reports per-category totals and carries overspend into the next week.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(addCmd, editCmd, deleteCmd, resetCmd)
	rootCmd.AddCommand(weekCmd, totalCmd, monthCmd, yearCmd, yearsCmd)
	rootCmd.AddCommand(adjustCmd, rolloverCmd, budgetCmd)
	rootCmd.AddCommand(watchCmd)
}

func loadConfig() (*config.Config, *applog.Logger, error) {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cli.SetupLogger(cfg, applog.ComponentCLI), nil
}

// withApp opens the ledger, runs fn and closes it again. When AMQP is
// configured, committed writes are forwarded to the broker before returning;
// an unreachable broker only costs a warning.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *cli.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := cli.NewApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer app.Close()

	if !cfg.AMQPEnabled() {
		return fn(ctx, app)
	}
	if err := app.ConnectAMQP(ctx); err != nil {
		logger.Warn("AMQP unavailable, changes stay local", applog.FieldError, err)
		return fn(ctx, app)
	}

	publisher := services.NewChangePublisher(app.AMQP, 0)
	unsubscribe := publisher.Attach(app.Notifier)
	defer unsubscribe()

	pubCtx, stop := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error { return publisher.Run(pubCtx) })

	err = fn(ctx, app)
	stop()
	_ = g.Wait()
	return err
}

// targetWeek resolves the --week flag, defaulting to the current week.
func targetWeek(now time.Time) (string, error) {
	if weekFlag == "" {
		return core.WeekStart(now), nil
	}
	return normalizeWeek(weekFlag)
}

// normalizeWeek maps any date to the start of its week.
func normalizeWeek(date string) (string, error) {
	if err := core.ValidateWeekStart(date); err != nil {
		return "", err
	}
	t, _ := time.Parse(core.DateLayout, date)
	return core.WeekStart(t), nil
}

func addWeekFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&weekFlag, "week", "w", "", "any date of the week (YYYY-MM-DD); defaults to the current week")
}
