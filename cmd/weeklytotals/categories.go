package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"weeklytotals/internal/cli"
)

var (
	categoriesAll bool
	categoryName  string
	categoryColor string
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Manage spending categories",
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories by display name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			cats, err := app.Categories.List(ctx, categoriesAll)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, c := range cats {
				system := ""
				if c.IsSystem {
					system = "system"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.DisplayName, c.Color, system)
			}
			return w.Flush()
		})
	},
}

var categoriesAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a user category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			c, err := app.Categories.Add(ctx, args[0], categoryName, categoryColor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added category %s (%s)\n", c.Name, c.DisplayName)
			return nil
		})
	},
}

var categoriesRenameCmd = &cobra.Command{
	Use:   "rename NAME DISPLAY_NAME",
	Short: "Change the display name of a user category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if err := app.Categories.Rename(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed category %s\n", args[0])
			return nil
		})
	},
}

var categoriesDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a user category that has no transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if err := app.Categories.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted category %s\n", args[0])
			return nil
		})
	},
}

func init() {
	categoriesListCmd.Flags().BoolVarP(&categoriesAll, "all", "a", false, "include system categories")
	categoriesAddCmd.Flags().StringVar(&categoryName, "display-name", "", "display name; derived from NAME when empty")
	categoriesAddCmd.Flags().StringVar(&categoryColor, "color", "#9e9e9e", "display color")

	categoriesCmd.AddCommand(categoriesListCmd, categoriesAddCmd, categoriesRenameCmd, categoriesDeleteCmd)
}
