package main

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jpvargas/gastotrack/internal/cli"
	"github.com/jpvargas/gastotrack/internal/mailbox"
	"github.com/jpvargas/gastotrack/internal/model"
)

func scheduleCmd() *cobra.Command {
	var (
		spec  string
		query string
		label string
		max   int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run mailbox syncs on a schedule until interrupted",
		Long: `Runs an import job for every configured mailbox provider on a cron
schedule, then categorizes any transactions the sync left uncategorized.
Blocks until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fetchers, err := buildFetchers(ctx)
			if err != nil {
				return err
			}
			runner, err := buildRunner(ctx, store)
			if err != nil {
				return err
			}
			orchestrator, err := buildOrchestrator(store)
			if err != nil {
				return err
			}

			providers := make([]model.EmailProvider, 0, len(fetchers))
			for _, f := range fetchers {
				providers = append(providers, f.Provider())
			}

			opts := mailbox.FetchOptions{Query: query, Label: label, MaxMessages: max}

			tick := func() {
				for _, provider := range providers {
					job, runErr := runner.Run(ctx, provider, opts)
					if runErr != nil {
						slog.Error("scheduled sync failed", "provider", provider, "error", runErr)
						continue
					}
					slog.Info("scheduled sync finished",
						"provider", provider,
						"job_id", job.ID,
						"status", job.Status,
						"created", job.CreatedCount,
						"errors", job.ErrorCount)
				}

				categorized, failed, catErr := orchestrator.CategorizePending(ctx, 0)
				if catErr != nil {
					slog.Error("scheduled categorization failed", "error", catErr)
					return
				}
				if categorized > 0 || failed > 0 {
					slog.Info("scheduled categorization finished", "categorized", categorized, "failed", failed)
				}
			}

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(spec, tick); err != nil {
				return fmt.Errorf("invalid cron spec %q: %w", spec, err)
			}

			fmt.Println(cli.FormatTitle(fmt.Sprintf("Scheduling syncs (%s)", spec)))
			tick()
			scheduler.Start()

			<-ctx.Done()
			<-scheduler.Stop().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "@every 30m", "cron schedule for sync runs")
	cmd.Flags().StringVar(&query, "query", "", "provider search query to filter messages")
	cmd.Flags().StringVar(&label, "label", "", "mailbox label or folder to fetch from")
	cmd.Flags().IntVar(&max, "max", 0, "maximum number of messages per sync (0 for the provider default)")

	return cmd
}
