package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/shopscout/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search and export API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.Int("concurrency", 1, "parallel shop-detail lookups per request")
	f.Duration("delay", time.Second, "wait before each shop-detail lookup")

	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	stopMetrics := a.startMetrics()
	defer stopMetrics(ctx)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	p, err := a.newPipeline()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: a.cfg.Server.Addr,
		Handler: server.New(p, server.Options{
			AllowedOrigins: a.cfg.Server.AllowedOrigins,
			Store:          store,
		}, a.logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Searches wait out one delay per distinct shop.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
