package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/bootstrap"
)

const ingestConfirmation = "Documents successfully ingested into the vector index"

func IngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [path]",
		Short: "Load, chunk, embed and upsert a text document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, bootstrap.Options{Ingest: true}, func(ctx context.Context, app *bootstrap.App) error {
				path := app.Config.Ingest.SourcePath
				if len(args) == 1 {
					path = args[0]
				}
				if _, err := app.Ingest.Ingest(ctx, path); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ingestConfirmation)
				return nil
			})
		},
	}
}
