// Package gridsync writes decoded forecasts into the cell and prediction
// tables and refreshes the latest-prediction view.
//
// The three operations are independently re-runnable. Writes are chunked;
// every chunk is its own transaction, so a failure leaves earlier chunks
// committed and a re-run skips them on conflict.
package gridsync

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/forecast-sync/internal/domain"
	"github.com/couchcryptid/forecast-sync/internal/observability"
	"github.com/couchcryptid/forecast-sync/internal/progress"
	"github.com/jonboulle/clockwork"
)

// Table labels used in logs, metrics and BatchWriteError.
const (
	TableCell       = "cell"
	TablePrediction = "prediction"
)

// Store is the persistence the Syncer drives. Insert methods write one chunk
// in one transaction and return the number of new rows.
type Store interface {
	EnsureCellTable(ctx context.Context) error
	EnsurePredictionTable(ctx context.Context) error
	InsertCells(ctx context.Context, cells []domain.Cell) (int64, error)
	LoadCellIndex(ctx context.Context) (domain.CellIndex, error)
	InsertPredictions(ctx context.Context, preds []domain.Prediction) (int64, error)
	RefreshLatestView(ctx context.Context) (domain.LatestView, error)
}

// Options tunes a Syncer.
type Options struct {
	BatchSize int
	// MaxUnresolvedFraction is the share of records allowed to miss a cell.
	MaxUnresolvedFraction float64
	// Clock drives ETA estimates; nil means the real clock.
	Clock clockwork.Clock
}

// Syncer runs the geometry, prediction and view steps against a Store.
type Syncer struct {
	store   Store
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Syncer.
func New(store Store, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Syncer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Syncer{store: store, opts: opts, logger: logger, metrics: metrics}
}

// PredictionResult summarises SyncPredictions.
type PredictionResult struct {
	Counts     domain.WriteCounts
	Resolution domain.Resolution
}

// SyncGeometries ensures the cell table holds one row per centroid of grid.
func (s *Syncer) SyncGeometries(ctx context.Context, grid domain.Grid) (domain.WriteCounts, error) {
	s.logger.Info("ensuring table exists", "table", TableCell)
	if err := s.store.EnsureCellTable(ctx); err != nil {
		return domain.WriteCounts{}, err
	}

	cells, err := domain.DeriveCells(grid)
	if err != nil {
		return domain.WriteCounts{}, err
	}
	s.logger.Info("identified cell geometries", "cells", len(cells), "x", len(grid.X), "y", len(grid.Y))

	counts, err := writeChunks(ctx, s, TableCell, cells, s.store.InsertCells)
	if err != nil {
		return counts, err
	}
	s.logger.Info("cell table contains all geometries",
		"table", TableCell, "inserted", counts.Inserted, "skipped", counts.Skipped)
	return counts, nil
}

// SyncPredictions resolves the positive-mean records of ds to cells and
// inserts them. Nothing is written when resolution fails.
func (s *Syncer) SyncPredictions(ctx context.Context, ds *domain.Dataset) (PredictionResult, error) {
	var res PredictionResult
	if err := s.ensureTables(ctx); err != nil {
		return res, err
	}

	records := ds.Records()
	s.logger.Info("loaded predictions from input data", "records", len(records))

	index, err := s.store.LoadCellIndex(ctx)
	if err != nil {
		return res, err
	}

	preds, resolution, err := domain.ResolveCells(records, index, s.opts.MaxUnresolvedFraction)
	res.Resolution = resolution
	s.metrics.UnresolvedRecords.Add(float64(resolution.Unmatched))
	if err != nil {
		s.logger.Error("cell resolution failed",
			"matched", resolution.Matched, "unmatched", resolution.Unmatched, "cells", len(index), "error", err)
		return res, err
	}
	if resolution.Unmatched > 0 {
		s.logger.Warn("dropping predictions without a matching cell",
			"unmatched", resolution.Unmatched, "fraction", resolution.UnmatchedFraction())
	}
	s.logger.Info("identified cell ids for predictions", "predictions", len(preds))

	res.Counts, err = writeChunks(ctx, s, TablePrediction, preds, s.store.InsertPredictions)
	if err != nil {
		return res, err
	}
	s.logger.Info("prediction table contains all predictions",
		"table", TablePrediction, "inserted", res.Counts.Inserted, "skipped", res.Counts.Skipped)
	return res, nil
}

// RefreshLatestView rebuilds the latest-prediction view.
func (s *Syncer) RefreshLatestView(ctx context.Context) (domain.LatestView, error) {
	if err := s.ensureTables(ctx); err != nil {
		return domain.LatestView{}, err
	}
	s.logger.Info("refreshing latest prediction view")
	view, err := s.store.RefreshLatestView(ctx)
	if err != nil {
		return view, err
	}
	s.metrics.LatestViewRows.Set(float64(view.Rows))
	s.logger.Info("refreshed latest prediction view", "date", view.Date.Format("2006-01-02"), "rows", view.Rows)
	return view, nil
}

// Sync runs the three steps in order for one dataset, filling report.
func (s *Syncer) Sync(ctx context.Context, ds *domain.Dataset, report *domain.SyncReport) error {
	cells, err := s.SyncGeometries(ctx, ds.Grid)
	report.Cells = cells
	if err != nil {
		return err
	}

	preds, err := s.SyncPredictions(ctx, ds)
	report.Predictions = preds.Counts
	report.Unresolved = preds.Resolution.Unmatched
	if err != nil {
		return err
	}

	view, err := s.RefreshLatestView(ctx)
	if err != nil {
		return err
	}
	report.Complete(view)
	return nil
}

func (s *Syncer) ensureTables(ctx context.Context) error {
	if err := s.store.EnsureCellTable(ctx); err != nil {
		return err
	}
	return s.store.EnsurePredictionTable(ctx)
}

// writeChunks inserts items chunk by chunk, logging progress with an ETA
// after each commit. The first failing chunk stops the pass.
func writeChunks[T any](ctx context.Context, s *Syncer, table string, items []T, insert func(context.Context, []T) (int64, error)) (domain.WriteCounts, error) {
	var counts domain.WriteCounts
	chunks := progress.Chunks(items, s.opts.BatchSize)
	tracker := progress.NewTracker(s.opts.Clock, len(chunks))
	s.logger.Info("writing rows", "table", table, "rows", len(items), "chunks", len(chunks))

	for i, chunk := range chunks {
		s.logger.Debug("preparing chunk", "table", table, "chunk", i+1, "chunks", len(chunks), "rows", len(chunk))
		start := s.opts.Clock.Now()

		inserted, err := insert(ctx, chunk)
		if err != nil {
			s.metrics.ChunkErrors.WithLabelValues(table).Inc()
			s.logger.Error("chunk write failed",
				"table", table, "chunk", i+1, "chunks", len(chunks), "error", err)
			return counts, &domain.BatchWriteError{Table: table, Chunk: i + 1, Chunks: len(chunks), Err: err}
		}

		counts.Add(int64(len(chunk)), inserted)
		s.metrics.ChunkDuration.WithLabelValues(table).Observe(s.opts.Clock.Since(start).Seconds())
		s.metrics.ChunksCommitted.WithLabelValues(table).Inc()
		s.metrics.RowsWritten.WithLabelValues(table, "inserted").Add(float64(inserted))
		s.metrics.RowsWritten.WithLabelValues(table, "skipped").Add(float64(int64(len(chunk)) - inserted))

		done, remaining := tracker.Step()
		s.logger.Info("chunk committed",
			"table", table,
			"chunk", done,
			"chunks", tracker.Total(),
			"rows", len(chunk),
			"inserted", inserted,
			"remaining", progress.FormatDuration(remaining),
		)
	}
	return counts, nil
}
