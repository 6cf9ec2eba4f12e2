// Command ingest syncs a single forecast file into PostGIS and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/forecast-sync/internal/adapter/netcdf"
	"github.com/couchcryptid/forecast-sync/internal/adapter/postgres"
	"github.com/couchcryptid/forecast-sync/internal/config"
	"github.com/couchcryptid/forecast-sync/internal/domain"
	"github.com/couchcryptid/forecast-sync/internal/gridsync"
	"github.com/couchcryptid/forecast-sync/internal/observability"
	"github.com/couchcryptid/forecast-sync/internal/pipeline"
)

var (
	file      = flag.String("file", "", "path to a forecast file in NetCDF format, or - for standard input")
	name      = flag.String("name", "", "file name recorded in the report; defaults to the base name of -file")
	batchSize = flag.Int("batch-size", 0, "rows per transaction; overrides BATCH_SIZE when positive")
	report    = flag.Bool("report", false, "print the sync report as JSON on success")
)

func main() {
	flag.Parse()
	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -file <forecast.nc|-> [-name NAME] [-batch-size N] [-report]")
		os.Exit(2)
	}
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *batchSize > 0 {
		cfg.BatchSize = *batchSize
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(netcdf.NewDecoder(logger),
		func() pipeline.Session { return postgres.NewStore(cfg, logger) },
		pipeline.Options{Sync: gridsync.Options{
			BatchSize:             cfg.BatchSize,
			MaxUnresolvedFraction: cfg.MaxUnresolvedFraction,
		}},
		logger, metrics)

	r, err := ingest(ctx, p, *file, *name)
	if err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
	if *report {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			logger.Error("write report", "error", err)
			os.Exit(1)
		}
	}
}

func ingest(ctx context.Context, p *pipeline.Pipeline, path, name string) (*domain.SyncReport, error) {
	if path == "-" {
		if name == "" {
			name = "stdin"
		}
		return p.ProcessReader(ctx, os.Stdin, name)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return p.ProcessFile(ctx, path, name)
}
