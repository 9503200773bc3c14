package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docqa/internal/bootstrap"
	"docqa/internal/config"
	"docqa/internal/logger"
)

func RootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "docqa",
		Short:         "Ingest documents into a vector index and ask questions about them",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if configPath != "" {
				return os.Setenv("CONFIG_FILE", configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the TOML config file (default configs/config.toml)")

	root.AddCommand(
		IngestCmd(),
		QueryCmd(),
		ServeCmd(),
	)
	return root
}

// runApp loads the configuration, builds the parts opts asks for and hands
// them to fn. Interrupts cancel the context passed to fn.
func runApp(cmd *cobra.Command, opts bootstrap.Options, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(cfg.Log.Level),
		Output:     cmd.ErrOrStderr(),
		JSON:       cfg.Log.JSON,
		TimeFormat: "15:04:05",
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithLogger(ctx, log)

	app, err := bootstrap.New(ctx, cfg, opts)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn("close resources failed", "error", err)
		}
	}()

	return fn(ctx, app)
}
