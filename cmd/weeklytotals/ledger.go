package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"weeklytotals/internal/cli"
	"weeklytotals/internal/core"
)

var (
	editAmount   string
	editCategory string
	editWeek     string
	resetYes     bool
	addFromText  string
)

var addCmd = &cobra.Command{
	Use:   "add [AMOUNT] CATEGORY",
	Short: "Record a transaction; a negative amount is a refund",
	Long: `Record a transaction. With --from-text the amount is read from a bank
SMS or notification and only CATEGORY is given; credits are refused.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if addFromText != "" {
			return cobra.ExactArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, categoryArg, err := addAmount(args)
		if err != nil {
			return err
		}
		week, err := targetWeek(time.Now())
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			category, err := userCategory(ctx, app, categoryArg)
			if err != nil {
				return err
			}

			t := core.Transaction{
				WeekStartDate: week,
				Category:      category,
				Amount:        amount,
				CreatedAt:     core.NowMillis(),
			}
			id, err := app.Store.InsertTransaction(ctx, t)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added #%d: %s %s (week of %s)\n", id, core.FormatAmount(amount), category, t.WeekStartDate)
			return nil
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change the amount, category or week of a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if editAmount == "" && editCategory == "" && editWeek == "" {
			return errors.New("nothing to change: pass --amount, --category or --week")
		}
		week := ""
		if editWeek != "" {
			if week, err = normalizeWeek(editWeek); err != nil {
				return err
			}
		}

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			t, err := existingTransaction(ctx, app, id)
			if err != nil {
				return err
			}

			if editAmount != "" {
				if t.Amount, err = core.ParseAmount(editAmount); err != nil {
					return fmt.Errorf("%q: %w", editAmount, err)
				}
			}
			switch {
			case editCategory == "":
			case t.IsAdjustment:
				if !strings.EqualFold(strings.TrimSpace(editCategory), core.AdjustmentCategory) {
					return fmt.Errorf("transaction %d is an adjustment, category stays %s: %w",
						id, core.AdjustmentCategory, core.ErrSystemCategory)
				}
			default:
				if t.Category, err = userCategory(ctx, app, editCategory); err != nil {
					return err
				}
			}
			if week != "" {
				t.WeekStartDate = week
			}

			if err := app.Store.UpdateTransaction(ctx, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated #%d: %s %s (week of %s)\n", t.ID, core.FormatAmount(t.Amount), t.Category, t.WeekStartDate)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			t, err := existingTransaction(ctx, app, id)
			if err != nil {
				return err
			}
			if err := app.Store.DeleteTransaction(ctx, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%d\n", id)
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every transaction; categories are kept",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetYes {
			return errors.New("refusing to delete every transaction without --yes")
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if err := app.Store.DeleteAllTransactions(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All transactions deleted")
			return nil
		})
	},
}

func init() {
	addWeekFlag(addCmd)
	addCmd.Flags().StringVar(&addFromText, "from-text", "", "bank SMS or notification to read the amount from")

	editCmd.Flags().StringVar(&editAmount, "amount", "", "new amount")
	editCmd.Flags().StringVar(&editCategory, "category", "", "new category name")
	editCmd.Flags().StringVar(&editWeek, "week", "", "move to the week of this date (YYYY-MM-DD)")

	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deleting every transaction")
}

// addAmount returns the amount and category arguments of add.
func addAmount(args []string) (decimal.Decimal, string, error) {
	if addFromText == "" {
		amount, err := core.ParseAmount(args[0])
		if err != nil {
			return decimal.Zero, "", fmt.Errorf("%q: %w", args[0], err)
		}
		return amount, args[1], nil
	}

	detected, ok := core.DetectTransaction(addFromText)
	if !ok {
		return decimal.Zero, "", fmt.Errorf("no spending found in %q", addFromText)
	}
	return detected.Amount, args[0], nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid transaction id %q", s)
	}
	return id, nil
}

func existingTransaction(ctx context.Context, app *cli.App, id int64) (core.Transaction, error) {
	t, ok, err := app.Store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return *t, nil
}

// userCategory resolves name to a stored user category.
func userCategory(ctx context.Context, app *cli.App, name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	c, ok, err := app.Store.GetCategoryByName(ctx, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("category %s: %w", name, core.ErrNotFound)
	}
	if c.IsSystem {
		return "", fmt.Errorf("category %s: %w", name, core.ErrSystemCategory)
	}
	return c.Name, nil
}
