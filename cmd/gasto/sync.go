package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpvargas/gastotrack/internal/cli"
	"github.com/jpvargas/gastotrack/internal/mailbox"
	"github.com/jpvargas/gastotrack/internal/model"
)

func syncCmd() *cobra.Command {
	var (
		query string
		label string
		max   int
	)

	cmd := &cobra.Command{
		Use:   "sync <provider>",
		Short: "Fetch notification emails from a mailbox and process them",
		Long: `Runs an import job against the given mailbox provider (gmail or
outlook): fetches matching messages, stores them, and runs each through the
ingestion pipeline. Refetching already-known messages is harmless.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			provider := model.EmailProvider(args[0])
			switch provider {
			case model.ProviderGmail, model.ProviderOutlook:
			default:
				return fmt.Errorf("unknown provider %q (expected gmail or outlook)", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runner, err := buildRunner(ctx, store)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatTitle(fmt.Sprintf("Syncing %s %s", provider, cli.MailIcon)))

			job, err := runner.Run(ctx, provider, mailbox.FetchOptions{
				Query:       query,
				Label:       label,
				MaxMessages: max,
			})
			if err != nil {
				return err
			}

			printJob(job)
			if job.Status == model.JobFailed {
				return fmt.Errorf("import job %s failed: %s", job.ID, job.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "provider search query to filter messages")
	cmd.Flags().StringVar(&label, "label", "", "mailbox label or folder to fetch from")
	cmd.Flags().IntVar(&max, "max", 0, "maximum number of messages to fetch (0 for the provider default)")

	return cmd
}

func printJob(job *model.ImportJob) {
	switch job.Status {
	case model.JobCompleted:
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("Job %s completed", job.ID)))
	case model.JobFailed:
		fmt.Println(cli.FormatError(fmt.Sprintf("Job %s failed: %s", job.ID, job.Error)))
	default:
		fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("Job %s is %s", job.ID, job.Status)))
	}

	fmt.Printf("  fetched:   %d\n", job.TotalEmails)
	fmt.Printf("  processed: %d\n", job.ProcessedCount)
	fmt.Printf("  created:   %d\n", job.CreatedCount)
	if job.ErrorCount > 0 {
		fmt.Println(cli.WarningStyle.Render(fmt.Sprintf("  errors:    %d", job.ErrorCount)))
	}
}
