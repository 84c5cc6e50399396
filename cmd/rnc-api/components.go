package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fourone/rnc-api/internal/admin"
	"github.com/fourone/rnc-api/internal/api"
	"github.com/fourone/rnc-api/internal/auth"
	"github.com/fourone/rnc-api/internal/config"
	"github.com/fourone/rnc-api/internal/importer"
	"github.com/fourone/rnc-api/internal/lookup"
	"github.com/fourone/rnc-api/internal/metrics"
	"github.com/fourone/rnc-api/internal/ratelimit"
	"github.com/fourone/rnc-api/internal/storage"
)

// core is what every subcommand needs: the store, the lookup service and
// the import runner.
type core struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *storage.SQLiteStorage
	lookup *lookup.Service
	runner *importer.Runner
}

// openCore opens the database and builds the services on top of it.
func openCore(cfg *config.Config, logger *slog.Logger) (*core, error) {
	if cfg.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	svc := lookup.NewService(store,
		lookup.WithCache(cfg.LookupCacheSize, cfg.LookupCacheTTL),
		lookup.WithLogger(logger))

	pipeline := importer.NewPipeline(store, logger, importer.WithBatchSize(cfg.ImportBatchSize))
	runner := importer.NewRunner(pipeline, store, logger,
		importer.WithStaleAfter(cfg.ImportStaleAfter),
		importer.OnSuccess(func(ctx context.Context, _ *importer.Stats) {
			// Cached NotFound answers may now be wrong.
			svc.Purge()
			if n, err := store.CountRecords(ctx); err == nil {
				metrics.SetRecordsLoaded(n)
			}
		}))

	return &core{
		cfg:    cfg,
		logger: logger,
		store:  store,
		lookup: svc,
		runner: runner,
	}, nil
}

func (c *core) Close() error {
	return c.store.Close()
}

// components is the fully wired server.
type components struct {
	*core
	logLevel *slog.LevelVar
	registry *prometheus.Registry
	gate     *ratelimit.Gate
	sessions *admin.SessionStore
	router   http.Handler
}

// initializeComponents wires storage, services and routers from cfg.
// On error nothing is left open.
func initializeComponents(cfg *config.Config, logger *slog.Logger, logLevel *slog.LevelVar) (*components, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Init(registry); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	creds, err := auth.NewCredentials(cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	windows, err := ratelimit.NewWindowStore(cfg.AnonMaxTrackedIPs)
	if err != nil {
		return nil, fmt.Errorf("create anonymous window store: %w", err)
	}

	c, err := openCore(cfg, logger)
	if err != nil {
		return nil, err
	}

	gate := ratelimit.NewGate(c.store, windows,
		ratelimit.WithAnonymousLimit(cfg.AnonRequestsPerMinute),
		ratelimit.WithLogger(logger))

	sessions := admin.NewSessionStore(cfg.SessionTimeout)
	adminHandler := admin.NewHandler(admin.Deps{
		Storage:     c.store,
		Importer:    c.runner,
		Registry:    c.lookup,
		Credentials: creds,
		Sessions:    sessions,
		LogLevel:    logLevel,
		Logger:      logger,
	}, admin.Config{
		UploadDir:              cfg.UploadDir,
		RegistryFile:           cfg.RegistryFile,
		MaxUploadBytes:         cfg.MaxUploadBytes,
		DefaultRequestsPerHour: cfg.TokenDefaultRequestsPerHour,
	})

	apiHandler := api.NewHandler(c.lookup, c.store, version, logger)
	router := api.NewRouter(apiHandler, api.RouterOptions{
		Admission:         auth.Middleware(gate, logger),
		Admin:             adminHandler.NewRouter(),
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Logger:            logger,
	})

	return &components{
		core:     c,
		logLevel: logLevel,
		registry: registry,
		gate:     gate,
		sessions: sessions,
		router:   router,
	}, nil
}

// bootImport loads the registry file into an empty store. It reports
// whether an import ran.
func (c *core) bootImport(ctx context.Context) (bool, error) {
	if !c.cfg.ImportOnBoot || c.cfg.RegistryFile == "" {
		return false, nil
	}
	if _, err := os.Stat(c.cfg.RegistryFile); errors.Is(err, os.ErrNotExist) {
		c.logger.Info("no registry file for boot import", "path", c.cfg.RegistryFile)
		return false, nil
	}

	n, err := c.store.CountRecords(ctx)
	if err != nil {
		return false, fmt.Errorf("count records: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	c.logger.Info("registry empty, importing on boot", "path", c.cfg.RegistryFile)
	stats, err := c.runner.Import(ctx, importer.Request{
		Path:     c.cfg.RegistryFile,
		Operator: "boot",
	})
	if err != nil {
		return true, err
	}
	c.logger.Info("boot import finished",
		"imported", stats.Imported,
		"rejected", stats.Rejected,
		"errors", stats.Errors,
		"duration", stats.Duration)
	return true, nil
}
