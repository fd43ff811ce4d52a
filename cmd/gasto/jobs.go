package main

import (
	"github.com/spf13/cobra"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect background import jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of an import job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			job, err := store.GetJob(ctx, args[0])
			if err != nil {
				return err
			}

			printJob(job)
			return nil
		},
	})

	return cmd
}
