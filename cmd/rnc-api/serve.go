package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fourone/rnc-api/internal/config"
	"github.com/fourone/rnc-api/internal/logging"
	"github.com/fourone/rnc-api/internal/metrics"
)

const (
	shutdownTimeout        = 15 * time.Second
	readHeaderTimeout      = 10 * time.Second
	sessionCleanupInterval = 10 * time.Minute
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the public API, the admin API and the metrics listener.

On startup interrupted imports are closed in the audit log and, when the
registry is empty and REGISTRY_FILE exists, the file is imported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe loads configuration, binds the listeners and serves until ctx
// is cancelled.
func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	logLevel := new(slog.LevelVar)
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat, logLevel)

	c, err := initializeComponents(cfg, logger, logLevel)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	var lc net.ListenConfig
	apiLn, err := lc.Listen(ctx, "tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	var metricsLn net.Listener
	if cfg.MetricsListenAddr != "" {
		metricsLn, err = lc.Listen(ctx, "tcp", cfg.MetricsListenAddr)
		if err != nil {
			apiLn.Close()
			return fmt.Errorf("listen on %s: %w", cfg.MetricsListenAddr, err)
		}
	}

	return c.serve(ctx, apiLn, metricsLn)
}

// serve runs the servers and background loops on the given listeners until
// ctx is cancelled or one of them fails. metricsLn may be nil.
func (c *components) serve(ctx context.Context, apiLn, metricsLn net.Listener) error {
	if _, err := c.runner.Reconcile(ctx); err != nil {
		c.logger.Error("failed to reconcile import runs", "error", err)
	}
	if n, err := c.store.CountRecords(ctx); err == nil {
		metrics.SetRecordsLoaded(n)
	}

	g, gctx := errgroup.WithContext(ctx)

	apiSrv := &http.Server{
		Handler:           c.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	servers := []*http.Server{apiSrv}

	c.logger.Info("RNC API starting",
		"version", version,
		"addr", apiLn.Addr().String(),
		"database", c.cfg.DatabasePath)
	g.Go(func() error { return serveHTTP(apiSrv, apiLn) })

	if metricsLn != nil {
		mux := chi.NewRouter()
		mux.Handle("/metrics", metrics.Handler(c.registry))
		metricsSrv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
		servers = append(servers, metricsSrv)

		c.logger.Info("metrics listener starting", "addr", metricsLn.Addr().String())
		g.Go(func() error { return serveHTTP(metricsSrv, metricsLn) })
	}

	g.Go(func() error {
		return c.sessions.RunCleanup(gctx, sessionCleanupInterval)
	})

	g.Go(func() error {
		// A failed boot import leaves the API up; the admin can retry.
		if _, err := c.bootImport(gctx); err != nil && gctx.Err() == nil {
			c.logger.Error("boot import failed", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Info("server stopped")
	return nil
}

func serveHTTP(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", ln.Addr(), err)
	}
	return nil
}
