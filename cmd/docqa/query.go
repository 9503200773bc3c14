package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/bootstrap"
)

func QueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question from the indexed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, bootstrap.Options{Query: true}, func(ctx context.Context, app *bootstrap.App) error {
				result, err := app.Query.Ask(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "\nAnswer:")
				fmt.Fprintln(cmd.OutOrStdout(), result.Answer)
				return nil
			})
		},
	}
}
