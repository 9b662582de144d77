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

	"github.com/spf13/cobra"

	"github.com/jobrunner/spatialquery/internal/app"
	"github.com/jobrunner/spatialquery/internal/logger"
)

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logging, os.Stdout)
	slog.SetDefault(log)
	log.Info("starting spatialquery",
		"version", version,
		"address", cfg.Server.Address(),
		"storage_type", cfg.Storage.Type,
		"strict_relations", cfg.Query.StrictRelations,
		"reprojection", cfg.Query.Reprojection,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	served := make(chan error, 1)
	go func() {
		served <- application.Start(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-served:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return errors.Join(runErr, err)
	}

	log.Info("server stopped")
	return runErr
}
