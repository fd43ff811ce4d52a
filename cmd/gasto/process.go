package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jpvargas/gastotrack/internal/cli"
)

func processCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Parse unprocessed notification emails into transactions",
		Long: `Parses stored notification emails that have not been processed yet,
extracting one transaction per email. Emails that fail to parse stay
unprocessed and are retried on the next run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			p, err := buildPipeline(store)
			if err != nil {
				return err
			}

			emails, err := store.GetUnprocessedEmails(ctx, limit)
			if err != nil {
				return err
			}
			if len(emails) == 0 {
				fmt.Println(cli.SubtleStyle.Render("Nothing to process."))
				return nil
			}

			fmt.Println(cli.FormatTitle(fmt.Sprintf("Processing %d emails", len(emails))))

			bar := progressbar.NewOptions(len(emails),
				progressbar.OptionSetDescription("parsing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)

			var created, updated, failed int
			for i := range emails {
				_, wasCreated, procErr := p.ProcessEmail(ctx, &emails[i])
				switch {
				case procErr != nil:
					failed++
				case wasCreated:
					created++
				default:
					updated++
				}
				_ = bar.Add(1)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("%d created, %d updated, %d failed", created, updated, failed)))
			if failed > 0 {
				fmt.Println(cli.FormatWarning(fmt.Sprintf("%d emails stay unprocessed for a later retry", failed)))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of emails to process")

	return cmd
}
