package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpvargas/gastotrack/internal/cli"
	"github.com/jpvargas/gastotrack/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Applies any pending schema migrations and seeds the default
categories and rules. Other commands do this on startup too; migrate exists
to do it explicitly, for example after an upgrade.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Database is at schema version %d", storage.ExpectedSchemaVersion)))
			return nil
		},
	}
}
