package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"weeklytotals/internal/cli"
	"weeklytotals/internal/core"
)

var rolloverAt string

var adjustCmd = &cobra.Command{
	Use:   "adjust AMOUNT",
	Short: "Record the adjustment of a week unless it already has one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := core.ParseAmount(args[0])
		if err != nil {
			return fmt.Errorf("%q: %w", args[0], err)
		}
		week, err := targetWeek(time.Now())
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			id, inserted, err := app.Reconciler.Adjust(ctx, week, amount)
			if err != nil {
				return err
			}
			if !inserted {
				fmt.Fprintf(cmd.OutOrStdout(), "Week of %s already has adjustment #%d\n", week, id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added adjustment #%d: %s (week of %s)\n", id, core.FormatAmount(amount), week)
			return nil
		})
	},
}

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Carry last week's overspend into the current week",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		now := time.Now()
		if rolloverAt != "" {
			t, err := time.Parse(core.DateLayout, rolloverAt)
			if err != nil {
				return fmt.Errorf("--at %q: %w", rolloverAt, err)
			}
			now = t
		}

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			created, err := app.Rollover.Process(ctx, now)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Carried overspend into the week of %s\n", core.WeekStart(now))
				return nil
			}

			previous, err := core.PreviousWeekStart(core.WeekStart(now))
			if err != nil {
				return err
			}
			budget, err := app.Rollover.Budget(ctx, previous)
			if err != nil {
				return err
			}
			if !budget.IsPositive() {
				return errors.New("rollover needs a weekly budget: run 'budget set' or set WEEKLY_BUDGET")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to carry over")
			return nil
		})
	},
}

func init() {
	addWeekFlag(adjustCmd)
	rolloverCmd.Flags().StringVar(&rolloverAt, "at", "", "pretend today is this date (YYYY-MM-DD)")
}
