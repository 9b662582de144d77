// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jobrunner/spatialquery/internal/adapters/geometry"
	"github.com/jobrunner/spatialquery/internal/adapters/geopackage"
	httpAdapter "github.com/jobrunner/spatialquery/internal/adapters/http"
	"github.com/jobrunner/spatialquery/internal/adapters/metrics"
	"github.com/jobrunner/spatialquery/internal/adapters/progress"
	"github.com/jobrunner/spatialquery/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/spatialquery/internal/adapters/tls"
	"github.com/jobrunner/spatialquery/internal/adapters/watcher"
	"github.com/jobrunner/spatialquery/internal/application"
	"github.com/jobrunner/spatialquery/internal/config"
	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Storage       output.ObjectStorage
	Repository    *geopackage.Repository
	Transformer   *geopackage.Transformer
	Registry      *application.PackageRegistry
	QueryService  *application.QueryService
	HealthService *application.HealthService
	SyncService   *application.SyncService
	HTTPServer    *httpAdapter.Server
	TLSServer     *tlsAdapter.Server
	Watcher       *watcher.Watcher
	Metrics       *metrics.Collector
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector(cfg.Metrics.Namespace, nil)
		metricsCollector = app.Metrics
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = storage.Instrument(store, metricsCollector)

	app.Repository, err = geopackage.NewRepository(cfg.Query.LayerCacheSize, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing repository: %w", err)
	}

	app.Registry = application.NewPackageRegistry(
		app.Repository,
		app.Storage,
		metricsCollector,
		logger,
		cfg.Storage.LocalPath,
	)

	app.HealthService = application.NewHealthService(app.Registry)

	var reprojectors output.ReprojectorFactory = geometry.IdentityFactory{}
	if cfg.Query.Reprojection {
		app.Transformer = geopackage.NewTransformer(logger)
		app.HealthService.AddCheck("reprojection", app.Transformer.Check)
		reprojectors = app.Transformer
	}

	query := application.NewSpatialQuery(
		geometry.NewEngine(),
		geometry.IndexFactory{},
		reprojectors,
		logger,
	)

	app.QueryService = application.NewQueryService(
		app.Registry,
		geometry.GeoJSONDecoder{},
		query,
		metricsCollector,
		logger,
		application.QueryServiceConfig{
			Timeout:         cfg.Query.Timeout,
			StrictRelations: cfg.Query.StrictRelations,
			Progress:        app.progressFactory(),
		},
	)

	if cfg.Storage.Type != "local" || cfg.Storage.SyncInterval > 0 {
		app.SyncService = application.NewSyncService(
			app.Registry,
			application.SyncConfig{Interval: cfg.Storage.SyncInterval},
			logger,
		)
	}

	services := httpAdapter.Services{
		Query:    app.QueryService,
		Packages: app.Registry,
		Health:   app.HealthService,
	}
	if app.SyncService != nil {
		services.Sync = app.SyncService
	}
	app.HTTPServer = httpAdapter.NewServer(cfg.Server, services, logger)

	if app.Metrics != nil {
		app.HTTPServer.Use(app.Metrics.Middleware)
		app.HTTPServer.Mount(cfg.Metrics.Path, app.Metrics.Handler())
	}

	if cfg.TLS.Enabled {
		app.TLSServer, err = tlsAdapter.NewServer(cfg.TLS, cfg.Server, app.HTTPServer.Router(), logger)
		if err != nil {
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
	}

	if cfg.Storage.Type == "local" && cfg.Storage.Watch {
		w, err := watcher.New(
			watcher.Config{Dirs: []string{cfg.Storage.LocalPath}},
			app.applyChange,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize file watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// progressFactory reports every run to the log and, when enabled, to the
// progress gauge.
func (a *App) progressFactory() application.ProgressFactory {
	every := a.Config.Query.ProgressLogEvery
	return func(relation domain.Relation, target, reference string) output.ProgressSink {
		sinks := output.MultiProgress{
			progress.NewLogSink(a.Logger.With(
				"relation", relation.String(),
				"target", target,
				"reference", reference,
			), every),
		}
		if a.Metrics != nil {
			sinks = append(sinks, a.Metrics.Progress())
		}
		return sinks
	}
}

// Start starts all application components and blocks while serving.
func (a *App) Start(ctx context.Context) error {
	if err := a.Registry.LoadAll(ctx); err != nil {
		a.Logger.Warn("failed to load packages", "error", err)
	}

	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}

	if a.SyncService != nil {
		a.SyncService.Start(ctx)
	}

	if a.TLSServer != nil {
		return a.TLSServer.ListenAndServe(ctx)
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}
	if a.SyncService != nil {
		a.SyncService.Stop()
	}

	var errs []error
	if a.TLSServer != nil {
		errs = append(errs, a.TLSServer.Shutdown(ctx))
	} else {
		errs = append(errs, a.HTTPServer.Shutdown(ctx))
	}

	packages, _ := a.Registry.ListPackages(ctx)
	for _, pkg := range packages {
		if err := a.Registry.UnloadPackage(ctx, pkg.ID); err != nil {
			a.Logger.Error("failed to unload package", "id", pkg.ID, "error", err)
		}
	}

	if a.Transformer != nil {
		errs = append(errs, a.Transformer.Close())
	}

	return errors.Join(errs...)
}

// applyChange keeps the registry in step with the local data directory.
func (a *App) applyChange(ctx context.Context, change watcher.Change) error {
	packageID := geopackage.DerivePackageID(change.Path)

	switch change.Action {
	case watcher.ActionLoad:
		return a.Registry.LoadPackage(ctx, change.Path)

	case watcher.ActionReload:
		if err := a.Registry.UnloadPackage(ctx, packageID); err != nil {
			return err
		}
		return a.Registry.LoadPackage(ctx, change.Path)

	case watcher.ActionUnload:
		if err := a.Registry.UnloadPackage(ctx, packageID); err != nil {
			a.Logger.Warn("failed to unload deleted package", "id", packageID, "error", err)
		}
	}

	return nil
}
