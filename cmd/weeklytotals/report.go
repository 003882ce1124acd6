package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"weeklytotals/internal/cli"
	"weeklytotals/internal/core"
)

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "List the transactions of a week, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		week, err := targetWeek(time.Now())
		if err != nil {
			return err
		}
		name, err := core.WeekName(week)
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			txns, err := app.Store.TransactionsForWeek(ctx, week)
			if err != nil {
				return err
			}
			total, err := app.Aggregator.WeeklyTotal(ctx, week)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Week of %s (%s)\n", week, name)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
			for _, t := range txns {
				kind := ""
				if t.IsAdjustment {
					kind = "carried over"
				}
				fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t\n", t.ID, t.Category, core.FormatAmount(t.Amount), kind)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Total: %s\n", core.FormatAmount(total))
			return budgetLine(ctx, out, app, week, total)
		})
	},
}

var totalCmd = &cobra.Command{
	Use:   "total",
	Short: "Print the total of a week, adjustments included",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		week, err := targetWeek(time.Now())
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			total, err := app.Aggregator.WeeklyTotal(ctx, week)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), core.FormatAmount(total))
			return nil
		})
	},
}

var monthCmd = &cobra.Command{
	Use:   "month [YYYY-MM]",
	Short: "Per-category totals for the weeks starting in a month",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		month := core.YearMonthOf(time.Now())
		if len(args) == 1 {
			month = args[0]
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			totals, err := app.Aggregator.CategoryTotalsForMonth(ctx, month)
			if err != nil {
				return err
			}
			return printTotals(cmd.OutOrStdout(), month, totals)
		})
	},
}

var yearCmd = &cobra.Command{
	Use:   "year [YYYY]",
	Short: "Per-category totals for the weeks starting in a year",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		year := strconv.Itoa(time.Now().Year())
		if len(args) == 1 {
			year = args[0]
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			totals, err := app.Aggregator.CategoryTotalsForYear(ctx, year)
			if err != nil {
				return err
			}
			return printTotals(cmd.OutOrStdout(), year, totals)
		})
	},
}

var yearsCmd = &cobra.Command{
	Use:   "years",
	Short: "List the years that have transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			years, err := app.Store.DistinctYears(ctx)
			if err != nil {
				return err
			}
			for _, y := range years {
				fmt.Fprintln(cmd.OutOrStdout(), y)
			}
			return nil
		})
	},
}

func init() {
	addWeekFlag(weekCmd)
	addWeekFlag(totalCmd)
}

// printTotals prints totals largest first, then the grand total.
func printTotals(out io.Writer, period string, totals []core.CategoryTotal) error {
	if len(totals) == 0 {
		fmt.Fprintf(out, "No transactions for %s\n", period)
		return nil
	}

	core.SortTotals(totals)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, t := range totals {
		fmt.Fprintf(w, "%s\t%s\t\n", t.Category, core.FormatAmount(t.Total))
	}
	fmt.Fprintf(w, "Total\t%s\t\n", core.FormatAmount(core.SumTotals(totals)))
	return w.Flush()
}

// budgetLine prints what is left of the week's budget, if one is set.
func budgetLine(ctx context.Context, out io.Writer, app *cli.App, week string, total decimal.Decimal) error {
	budget, err := app.Rollover.Budget(ctx, week)
	if err != nil {
		return err
	}
	if !budget.IsPositive() {
		return nil
	}
	left := budget.Sub(total)
	if left.IsNegative() {
		_, err := fmt.Fprintf(out, "Over budget by %s\n", core.FormatAmount(left.Neg()))
		return err
	}
	_, err = fmt.Fprintf(out, "Left this week: %s of %s\n", core.FormatAmount(left), core.FormatAmount(budget))
	return err
}
