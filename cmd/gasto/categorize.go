package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpvargas/gastotrack/internal/cli"
)

func categorizeCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize parsed transactions without a category",
		Long: `Runs the categorization flow over uncategorized transactions:
deterministic rules first, then the LLM fallback when one is configured.
Transactions nothing can settle on are flagged for manual review.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			orchestrator, err := buildOrchestrator(store)
			if err != nil {
				return err
			}

			categorized, failed, err := orchestrator.CategorizePending(ctx, limit)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("%d transactions categorized", categorized)))
			if failed > 0 {
				fmt.Println(cli.FormatWarning(fmt.Sprintf("%d transactions failed", failed)))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of transactions to categorize")

	return cmd
}
