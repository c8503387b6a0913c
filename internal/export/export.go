// Package export mirrors ledger changes into the analytics dataset and
// archives a snapshot of each run.
package export

import (
	"context"
	"fmt"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/ledger-engine/internal/archive"
	"github.com/dvloznov/ledger-engine/internal/infra/bigquery"
	"github.com/dvloznov/ledger-engine/internal/infra/sqlite"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// Source yields the entities changed after a watermark.
type Source interface {
	ChangesSince(ctx context.Context, since time.Time) (*sqlite.Changes, error)
}

// Sink stores exported rows and run bookkeeping.
type Sink interface {
	LastWatermark(ctx context.Context) (time.Time, error)
	StartRun(ctx context.Context, runID string, started time.Time) error
	WriteBatch(ctx context.Context, b bigquery.Batch) error
	FinishRun(ctx context.Context, run *bigquery.ExportRunRow) error
}

// Snapshotter archives the raw changes of a run.
type Snapshotter interface {
	WriteSnapshot(ctx context.Context, runID string, at time.Time, s archive.Snapshot) (string, error)
}

// Report summarizes one run.
type Report struct {
	RunID        string
	Since        time.Time
	Watermark    time.Time
	Accounts     int
	Transactions int
	Events       int
	SnapshotURI  string
}

// Empty reports whether the run found nothing to export.
func (r *Report) Empty() bool {
	return r.Accounts+r.Transactions+r.Events == 0
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithSnapshots archives each non-empty run through s.
func WithSnapshots(s Snapshotter) Option {
	return func(e *Exporter) { e.snapshots = s }
}

// WithClock overrides the run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithRunIDGenerator overrides uuid run ids.
func WithRunIDGenerator(fn func() string) Option {
	return func(e *Exporter) { e.newID = fn }
}

// Exporter runs incremental exports.
type Exporter struct {
	source    Source
	sink      Sink
	snapshots Snapshotter
	now       func() time.Time
	newID     func() string
}

// New creates an Exporter reading from source and writing to sink.
func New(source Source, sink Sink, opts ...Option) *Exporter {
	e := &Exporter{
		source: source,
		sink:   sink,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run exports everything changed since the last successful run. A failed run
// is recorded as FAILED and leaves the watermark where it was, so the next
// run retries the same rows.
func (e *Exporter) Run(ctx context.Context) (*Report, error) {
	log := logger.FromContext(ctx)

	since, err := e.sink.LastWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: reading watermark: %w", err)
	}

	report := &Report{RunID: e.newID(), Since: since, Watermark: since}
	started := e.now()
	if err := e.sink.StartRun(ctx, report.RunID, started); err != nil {
		return nil, fmt.Errorf("Run: starting run: %w", err)
	}

	log = log.With().Str("export_run_id", report.RunID).Time("since", since).Logger()
	ctx = logger.WithContext(ctx, log)

	runErr := e.export(ctx, report, since, started)

	finish := &bigquery.ExportRunRow{
		ExportRunID:  report.RunID,
		StartedAt:    started,
		FinishedAt:   bq.NullTimestamp{Timestamp: e.now(), Valid: true},
		Status:       bigquery.RunSuccess,
		Accounts:     int64(report.Accounts),
		Transactions: int64(report.Transactions),
		Events:       int64(report.Events),
	}
	if report.SnapshotURI != "" {
		finish.SnapshotURI = bq.NullString{StringVal: report.SnapshotURI, Valid: true}
	}
	if runErr != nil {
		finish.Status = bigquery.RunFailed
		finish.ErrorMessage = bq.NullString{StringVal: runErr.Error(), Valid: true}
	} else if !report.Watermark.IsZero() {
		finish.Watermark = bq.NullTimestamp{Timestamp: report.Watermark, Valid: true}
	}

	// The run row must be closed even when ctx was cancelled mid-export.
	if err := e.sink.FinishRun(context.WithoutCancel(ctx), finish); err != nil {
		log.Error().Err(err).Msg("Failed to record export run outcome")
		if runErr == nil {
			return report, fmt.Errorf("Run: finishing run: %w", err)
		}
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("Export run failed")
		return report, fmt.Errorf("Run: %w", runErr)
	}

	log.Info().
		Int("accounts", report.Accounts).
		Int("transactions", report.Transactions).
		Int("events", report.Events).
		Time("watermark", report.Watermark).
		Msg("Export run finished")
	return report, nil
}

func (e *Exporter) export(ctx context.Context, report *Report, since, started time.Time) error {
	changes, err := e.source.ChangesSince(ctx, since)
	if err != nil {
		return fmt.Errorf("reading changes: %w", err)
	}
	report.Accounts = len(changes.Accounts)
	report.Transactions = len(changes.Transactions)
	report.Events = len(changes.Events)
	if report.Empty() {
		log := logger.FromContext(ctx)
		log.Debug().Msg("Nothing to export")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.sink.WriteBatch(gctx, bigquery.Batch{
			RunID:        report.RunID,
			ExportedAt:   started,
			Accounts:     changes.Accounts,
			Transactions: changes.Transactions,
			Events:       changes.Events,
		})
	})
	if e.snapshots != nil {
		g.Go(func() error {
			uri, err := e.snapshots.WriteSnapshot(gctx, report.RunID, started, archive.Snapshot{
				Accounts:     changes.Accounts,
				Transactions: changes.Transactions,
				Events:       changes.Events,
			})
			if err != nil {
				return err
			}
			report.SnapshotURI = uri
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report.Watermark = changes.Watermark
	return nil
}
