package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"docqa/internal/bootstrap"
	httptransport "docqa/internal/transport/http"
)

func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingest and query pipelines over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := bootstrap.Options{Ingest: true, Query: true, Worker: true}
			return runApp(cmd, opts, func(ctx context.Context, app *bootstrap.App) error {
				server := &http.Server{
					Addr:              app.Config.HTTPAddr(),
					Handler:           httptransport.NewRouter(app),
					ReadHeaderTimeout: 5 * time.Second,
				}
				errCh := make(chan error, 1)
				go func() {
					app.Logger.Info("server starting", "addr", server.Addr)
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- err
					}
					close(errCh)
				}()

				select {
				case err := <-errCh:
					if err != nil {
						return fmt.Errorf("server failed: %w", err)
					}
					return nil
				case <-ctx.Done():
				}
				return shutdown(app, server)
			})
		},
	}
}

func shutdown(app *bootstrap.App, server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app.Logger.Info("server shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
