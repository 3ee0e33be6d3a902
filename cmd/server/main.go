// Package main is the entry point for the vendstock API server.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vendstock/internal/bootstrap"
	"vendstock/internal/config"
	"vendstock/internal/core/clock"
	v1 "vendstock/internal/infrastructure/http/v1"
	"vendstock/internal/infrastructure/http/v1/handlers"
	"vendstock/internal/infrastructure/metrics"
	"vendstock/internal/infrastructure/storage/postgres"
	"vendstock/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting vendstock server", "storage", cfg.StorageDriver)

	shutdownTracing, err := bootstrap.SetupTracing(cfg.OTelStdout, "vendstock-server")
	if err != nil {
		log.Fatalw("failed to set up tracing", "error", err)
	}

	clk := clock.System()
	st, err := bootstrap.OpenStorage(ctx, cfg, clk)
	if err != nil {
		log.Fatalw("failed to open storage", "error", err)
	}
	defer st.Close()

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer := metrics.NewRestock(registry)

	services := bootstrap.NewServices(st, clk, cfg.SessionTTL, observer)

	name, pinger := st.Pinger()
	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		Products:     services.Products,
		Machines:     services.Machines,
		Restock:      services.Restock,
		Clock:        clk,
		HealthChecks: map[string]handlers.Pinger{name: pinger},
		Metrics:      metrics.Handler(registry),
		Debug:        cfg.Development(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// Abandoned handheld sessions hold the machine's restocking lock; reap them.
	reapCtx, stopReaper := context.WithCancel(ctx)
	go reapSessions(reapCtx, log, services, clk)

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	stopReaper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warnw("tracer shutdown failed", "error", err)
	}
	if st.Pool != nil {
		postgres.LogPoolStats(shutdownCtx, st.Pool)
	}

	log.Info("server stopped")
}

func reapSessions(ctx context.Context, log *logger.Logger, services bootstrap.Services, clk clock.Clock) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := services.Restock.ExpireIdle(clk.Now()); n > 0 {
				log.Infow("expired idle restock sessions", "count", n)
			}
		}
	}
}
