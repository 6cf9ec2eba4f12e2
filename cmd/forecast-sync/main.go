package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/forecast-sync/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/forecast-sync/internal/adapter/kafka"
	"github.com/couchcryptid/forecast-sync/internal/adapter/netcdf"
	"github.com/couchcryptid/forecast-sync/internal/adapter/postgres"
	"github.com/couchcryptid/forecast-sync/internal/config"
	"github.com/couchcryptid/forecast-sync/internal/gridsync"
	"github.com/couchcryptid/forecast-sync/internal/observability"
	"github.com/couchcryptid/forecast-sync/internal/pipeline"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	sessions := func() pipeline.Session { return postgres.NewStore(cfg, logger) }
	p := pipeline.New(netcdf.NewDecoder(logger), sessions, pipeline.Options{
		Sync: gridsync.Options{
			BatchSize:             cfg.BatchSize,
			MaxUnresolvedFraction: cfg.MaxUnresolvedFraction,
		},
	}, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx, reader, writer); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
