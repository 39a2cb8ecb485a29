package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/duetboard/duetboard/pkg/api"
	"github.com/duetboard/duetboard/pkg/config"
	"github.com/duetboard/duetboard/pkg/observability"
	"github.com/duetboard/duetboard/pkg/sessions"
	"github.com/duetboard/duetboard/pkg/webhooks"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithFields(map[string]interface{}{
		"port":        cfg.Server.Port,
		"health_port": cfg.Server.HealthPort,
		"db_path":     cfg.Database.Path,
	}).Info("Starting duetboard")

	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, cfg.OTel(), logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	db, err := sessions.Open(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}

	manager := webhooks.NewManager(cfg.Webhooks, logger.WithField("component", "webhooks"), metrics)

	store, err := sessions.NewStore(db, manager, metrics)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize session store")
		os.Exit(1)
	}

	manager.Start(ctx)
	logger.Info("Webhook delivery manager started")

	handler := api.NewRouter(manager, store, logger, metrics)
	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := newHealthServer(cfg, db, registry)

	go func() {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	// Stop the delivery loop before closing its downstream dependencies.
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		manager.Stop()
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp, logger)
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

// newHealthServer builds the sidecar server exposing liveness, readiness
// and Prometheus metrics on the health port
func newHealthServer(cfg *config.Config, db *sql.DB, registry *prometheus.Registry) *http.Server {
	checker := observability.NewHealthChecker(db)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", observability.Handler(registry))
	}

	return &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: mux,
	}
}
