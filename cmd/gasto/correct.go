package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jpvargas/gastotrack/internal/cli"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/rules"
)

func correctCmd() *cobra.Command {
	var subcategoryID int64

	cmd := &cobra.Command{
		Use:   "correct <transaction-id> <category-code>",
		Short: "Manually re-categorize a transaction",
		Long: `Assigns a category to a transaction by hand. The change is recorded as
a correction, the transaction is marked manually categorized at full
confidence, and a rule suggestion is filed for the merchant.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			txnID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid transaction id %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			txn, err := store.GetTransaction(ctx, txnID)
			if err != nil {
				return err
			}
			category, err := store.GetCategoryByCode(ctx, args[1])
			if err != nil {
				return fmt.Errorf("unknown category %q: %w", args[1], err)
			}

			var subID *int64
			if subcategoryID > 0 {
				subID = &subcategoryID
			}

			correction, err := rules.ApplyCorrection(ctx, store, store, txn, category.ID, subID)
			if err != nil {
				return err
			}
			if correction == nil {
				fmt.Println(cli.SubtleStyle.Render("Transaction already carries that category."))
				return nil
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Transaction %d set to %s", txn.ID, category.Name)))

			pending, err := store.ListSuggestions(ctx, model.SuggestionPending)
			if err == nil && len(pending) > 0 {
				fmt.Println(cli.SubtleStyle.Render(
					fmt.Sprintf("%d pending rule suggestions (gasto rules suggestions list)", len(pending))))
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&subcategoryID, "subcategory", 0, "subcategory id to assign")

	return cmd
}
