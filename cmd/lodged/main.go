// Command lodged serves the Lodge HTTP API and runs the summary rebuild worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/lodge/internal/api"
	"github.com/dyluth/lodge/internal/config"
	"github.com/dyluth/lodge/internal/instance"
	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/internal/logging"
	"github.com/dyluth/lodge/internal/metrics"
	"github.com/dyluth/lodge/internal/notify"
	"github.com/dyluth/lodge/internal/rebuild"
	"github.com/dyluth/lodge/internal/tenant"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// EnvConfigPath overrides lodge.yml discovery.
const EnvConfigPath = "LODGE_CONFIG"

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load lodge.yml (LODGE_CONFIG, or discovered from the working directory)
	cfg, err := instance.LoadConfig(os.Getenv(EnvConfigPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid log_level: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, "lodged", cfg.Instance)
	gin.SetMode(gin.ReleaseMode)

	// 2. Stop on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("lodged stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("lodged stopped")
}

// run wires the store, engine, API and rebuild worker, and blocks until ctx
// is cancelled or one of them fails.
func run(ctx context.Context, cfg *config.LodgeConfig, logger zerolog.Logger) error {
	shutdownTracing, err := setupTracing(cfg, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	store, err := instance.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine := lifecycle.NewEngine(store,
		lifecycle.WithTenantGate(tenant.NewRedisGate(store)),
		lifecycle.WithNotifier(notify.NewPublisher(store)),
		lifecycle.WithRebuilder(rebuild.NewQueue(store)),
		lifecycle.WithMetrics(m),
		lifecycle.WithLogger(logger.With().Str("component", "engine").Logger()),
		lifecycle.WithTxPolicy(instance.TxPolicy(cfg)),
		lifecycle.WithMaxPageSize(cfg.Revisions.MaxPageSize),
	)

	worker := rebuild.NewWorker(store,
		rebuild.WithPollInterval(cfg.Rebuild.PollInterval),
		rebuild.WithLogger(logger.With().Str("component", "rebuild").Logger()),
		rebuild.WithMetrics(m),
	)

	srv := api.NewServer(engine,
		api.WithOperators(cfg.IsOperator),
		api.WithGatherer(reg),
		api.WithLogger(logger.With().Str("component", "api").Logger()),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := worker.Run(gctx); err != nil {
			return fmt.Errorf("rebuild worker: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	return g.Wait()
}
