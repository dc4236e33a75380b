package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudwarden/cloudwarden/internal/metrics"
)

var metricsShutdownTimeout = 5 * time.Second

// startMetricsServer serves the engine's Prometheus metrics at
// addr/metrics until ctx is cancelled, grounded on
// cmd/pulse/metrics_server.go's listen-and-shutdown shape.
func startMetricsServer(ctx context.Context, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Str("addr", addr).Msg("failed to shut down metrics server cleanly")
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped unexpectedly")
		}
	}()
}
