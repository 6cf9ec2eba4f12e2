// Package pipeline turns forecast file notifications into synced tables and
// published sync reports.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/forecast-sync/internal/domain"
	"github.com/couchcryptid/forecast-sync/internal/gridsync"
	"github.com/couchcryptid/forecast-sync/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// File outcomes recorded in metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeDecodeError = "decode_error"
	OutcomeRejected    = "rejected"
	OutcomeSyncError   = "sync_error"
)

// Extractor reads the next file notification, blocking until one arrives.
type Extractor interface {
	Extract(ctx context.Context) (domain.FileNotification, error)
}

// Loader publishes a completed sync report.
type Loader interface {
	Load(ctx context.Context, report *domain.SyncReport) error
}

// Decoder reads a forecast file, or a stream holding one, into a dataset.
type Decoder interface {
	DecodeFile(ctx context.Context, path string) (*domain.Dataset, error)
	Decode(ctx context.Context, r io.Reader) (*domain.Dataset, error)
}

// Session is a database session scoped to one file.
type Session interface {
	gridsync.Store
	Close(ctx context.Context) error
}

// SessionFactory opens a new session. The pipeline closes it when the file
// is done.
type SessionFactory func() Session

// Options tunes a Pipeline. Zero values select the defaults.
type Options struct {
	Sync           gridsync.Options
	Clock          clockwork.Clock
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Pipeline decodes and syncs forecast files.
type Pipeline struct {
	decoder  Decoder
	sessions SessionFactory
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
	last     atomic.Pointer[domain.SyncReport]
}

// New creates a Pipeline.
func New(dec Decoder, sessions SessionFactory, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Sync.Clock == nil {
		opts.Sync.Clock = opts.Clock
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = max(5*time.Second, opts.InitialBackoff)
	}
	return &Pipeline{
		decoder:  dec,
		sessions: sessions,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once a file has been synced.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no forecast file has been synced yet")
	}
	return nil
}

// LastReport returns the report of the most recent successful sync, or nil.
func (p *Pipeline) LastReport() *domain.SyncReport {
	return p.last.Load()
}

// ProcessFile decodes the file at path and runs geometry sync, prediction
// sync and the view refresh against a fresh session. The returned report is
// filled as far as the run got, even on error.
func (p *Pipeline) ProcessFile(ctx context.Context, path, name string) (*domain.SyncReport, error) {
	return p.process(ctx, path, name, func() (*domain.Dataset, error) {
		return p.decoder.DecodeFile(ctx, path)
	})
}

// ProcessReader is ProcessFile for a forecast file read from r, such as
// standard input.
func (p *Pipeline) ProcessReader(ctx context.Context, r io.Reader, name string) (*domain.SyncReport, error) {
	return p.process(ctx, "-", name, func() (*domain.Dataset, error) {
		return p.decoder.Decode(ctx, r)
	})
}

func (p *Pipeline) process(ctx context.Context, path, name string, decode func() (*domain.Dataset, error)) (*domain.SyncReport, error) {
	start := p.opts.Clock.Now()
	report := domain.NewSyncReport(uuid.NewString(), name)
	logger := p.logger.With("run_id", report.RunID, "file", name)
	logger.Info("processing forecast file", "path", path)

	ds, err := decode()
	if err != nil {
		p.metrics.FilesProcessed.WithLabelValues(OutcomeDecodeError).Inc()
		logger.Error("decode failed", "error", err)
		return report, err
	}
	if err := ds.Validate(); err != nil {
		p.metrics.FilesProcessed.WithLabelValues(OutcomeDecodeError).Inc()
		logger.Error("decode failed", "error", err)
		return report, err
	}

	session := p.sessions()
	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("close session failed", "error", err)
		}
	}()

	syncer := gridsync.New(session, p.opts.Sync, logger, p.metrics)
	if err := syncer.Sync(ctx, ds, report); err != nil {
		outcome := OutcomeSyncError
		if Permanent(err) {
			outcome = OutcomeRejected
		}
		p.metrics.FilesProcessed.WithLabelValues(outcome).Inc()
		logger.Error("sync failed", "error", err)
		return report, err
	}

	p.metrics.FilesProcessed.WithLabelValues(OutcomeSuccess).Inc()
	p.metrics.SyncDuration.Observe(p.opts.Clock.Since(start).Seconds())
	p.last.Store(report)
	p.ready.Store(true)
	logger.Info("forecast file synced",
		"cells_inserted", report.Cells.Inserted,
		"predictions_inserted", report.Predictions.Inserted,
		"predictions_skipped", report.Predictions.Skipped,
		"unresolved", report.Unresolved,
		"latest_date", report.LatestDate,
	)
	return report, nil
}

// Permanent reports whether retrying the same file cannot succeed.
func Permanent(err error) bool {
	return errors.Is(err, domain.ErrDecode) ||
		errors.Is(err, domain.ErrInsufficientGrid) ||
		errors.Is(err, domain.ErrCellResolution)
}

// Run consumes notifications from src until the context is cancelled. Each
// file is synced and its report published to sink before the offset is
// committed. Transient failures retry the same file with exponential backoff;
// permanent ones are committed and skipped.
func (p *Pipeline) Run(ctx context.Context, src Extractor, sink Loader) error {
	p.logger.Info("pipeline started")
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := p.opts.InitialBackoff
	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		n, err := src.Extract(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			p.logger.Error("extract notification failed", "error", err)
			if !p.backoffOrStop(ctx, &backoff) {
				return nil
			}
			continue
		}
		p.metrics.NotificationsConsumed.Inc()
		backoff = p.opts.InitialBackoff

		if !p.handle(ctx, n, sink, &backoff) {
			return nil
		}
	}
}

// handle syncs and publishes one notification, retrying transient failures.
// A synced file whose report fails to publish is not synced again. Returns
// false if the pipeline should stop.
func (p *Pipeline) handle(ctx context.Context, n domain.FileNotification, sink Loader, backoff *time.Duration) bool {
	var synced *domain.SyncReport
	for {
		if synced == nil {
			report, err := p.ProcessFile(ctx, n.Path, n.Name)
			switch {
			case err == nil:
				synced = report
			case Permanent(err):
				p.logger.Warn("skipping forecast file", "error", err,
					"path", n.Path, "topic", n.Topic, "partition", n.Partition, "offset", n.Offset)
				p.commitOffset(ctx, n)
				return true
			}
		}

		if synced != nil {
			err := sink.Load(ctx, synced)
			if err == nil {
				p.metrics.ReportsProduced.Inc()
				p.commitOffset(ctx, n)
				*backoff = p.opts.InitialBackoff
				return true
			}
			p.logger.Error("publish sync report failed", "error", err, "run_id", synced.RunID)
		}

		if !p.backoffOrStop(ctx, backoff) {
			return false
		}
	}
}

func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, p.opts.Clock, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, p.opts.MaxBackoff)
	return true
}

func (p *Pipeline) commitOffset(ctx context.Context, n domain.FileNotification) {
	if n.Commit == nil {
		return
	}
	if err := n.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", n.Topic, "partition", n.Partition, "offset", n.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
