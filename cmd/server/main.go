package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips/api"
	"github.com/mateer-t1/music-moments-api/pkg/clips/config"
	"github.com/mateer-t1/music-moments-api/pkg/clips/metrics"
	"github.com/mateer-t1/music-moments-api/pkg/clips/presigned"
	"github.com/tendant/chi-demo/app"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.WithDotEnv(), config.WithEnv())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := cfg.BuildComponents(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer comps.Close()

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	server.R.Handle("/metrics", metrics.Handler())

	api.NewHandler(comps.Service, logger).Mount(server.R)
	if comps.Signer != nil {
		presigned.NewHandlers(comps.Signer, cfg.StorageContainer, comps.Store).Mount(server.R)
		logger.Info("Serving signed blob endpoint", "prefix", comps.Signer.PathPrefix(), "container", cfg.StorageContainer)
	}

	if cfg.Reconcile.Interval > 0 {
		go func() {
			err := comps.Reconciler().RunEvery(ctx, cfg.Reconcile.Interval, cfg.ReconcileOptions())
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Reconciler stopped", "err", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.R,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Music moments API starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"database", cfg.DatabaseType,
			"storage", cfg.StorageType,
			"events", cfg.EventsType)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exiting")
	return nil
}
