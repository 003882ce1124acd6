package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"weeklytotals/internal/cli"
	"weeklytotals/internal/core"
)

var budgetNow bool

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show the weekly budget",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		week := core.WeekStart(time.Now())
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			b, err := app.Store.Budget(ctx)
			if err != nil {
				return err
			}
			current, err := app.Rollover.Budget(ctx, week)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			source := "stored"
			if !b.IsSet && (b.PendingFrom == "" || b.PendingFrom > week) {
				source = "WEEKLY_BUDGET"
			}
			if current.IsPositive() {
				fmt.Fprintf(out, "Weekly budget: %s (%s)\n", core.FormatAmount(current), source)
			} else {
				fmt.Fprintln(out, "No weekly budget; rollover is off")
			}
			if b.PendingFrom > week {
				fmt.Fprintf(out, "Changes to %s from the week of %s\n", core.FormatAmount(b.Pending), b.PendingFrom)
			}
			return nil
		})
	},
}

var budgetSetCmd = &cobra.Command{
	Use:   "set AMOUNT",
	Short: "Change the weekly budget from next week, or right away with --now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := core.ParseAmount(args[0])
		if err != nil {
			return fmt.Errorf("%q: %w", args[0], err)
		}
		if err := core.ValidateBudget(amount); err != nil {
			return err
		}
		next, err := core.NextWeekStart(core.WeekStart(time.Now()))
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if budgetNow {
				if err := app.Store.SetBudget(ctx, amount); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Weekly budget is now %s\n", core.FormatAmount(amount))
				return nil
			}
			if err := app.Store.SetPendingBudget(ctx, amount, next); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Weekly budget changes to %s from the week of %s\n", core.FormatAmount(amount), next)
			return nil
		})
	},
}

func init() {
	budgetSetCmd.Flags().BoolVar(&budgetNow, "now", false, "apply to the current week as well")
	budgetCmd.AddCommand(budgetSetCmd)
}
