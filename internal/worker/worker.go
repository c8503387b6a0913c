// Package worker turns queued jobs into ledger operations: recurrence sweeps,
// BigQuery exports and statement imports.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/export"
	"github.com/dvloznov/ledger-engine/internal/importer"
	"github.com/dvloznov/ledger-engine/internal/jobs"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// Sweeper materializes due recurrences. *ledger.Ledger implements it.
type Sweeper interface {
	SweepRecurrences(ctx context.Context) (ledger.SweepReport, error)
}

// Exporter runs one incremental export. *export.Exporter implements it.
type Exporter interface {
	Run(ctx context.Context) (*export.Report, error)
}

// Importer records the lines of a statement. *importer.Importer implements it.
type Importer interface {
	Import(ctx context.Context, req importer.Request) (*importer.Result, error)
}

// Register installs a handler on mux for every collaborator that is not nil.
// Job types without a collaborator stay unregistered and fail permanently.
func Register(mux *jobs.Mux, sweeper Sweeper, exporter Exporter, imp Importer) {
	if sweeper != nil {
		mux.Handle(jobs.JobTypeSweepRecurrences, SweepHandler(sweeper))
	}
	if exporter != nil {
		mux.Handle(jobs.JobTypeExportLedger, ExportHandler(exporter))
	}
	if imp != nil {
		mux.Handle(jobs.JobTypeImportStatement, ImportHandler(imp))
	}
}

// SweepHandler runs a recurrence sweep.
func SweepHandler(s Sweeper) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.Job) error {
		report, err := s.SweepRecurrences(ctx)
		if err != nil {
			return classify(err)
		}
		job.Result = fmt.Sprintf("processed %d, materialized %d, failed %d, stopped %d",
			report.Processed, report.Materialized, report.Failed, report.Stopped)
		return nil
	}
}

// ExportHandler runs an export.
func ExportHandler(e Exporter) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.Job) error {
		report, err := e.Run(ctx)
		if err != nil {
			return classify(err)
		}
		if report.Empty() {
			job.Result = fmt.Sprintf("run %s: nothing changed", report.RunID)
			return nil
		}
		job.Result = fmt.Sprintf("run %s: %d accounts, %d transactions, %d events",
			report.RunID, report.Accounts, report.Transactions, report.Events)
		return nil
	}
}

// ImportHandler imports the statement named by the job.
func ImportHandler(im Importer) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.Job) error {
		if job.Import == nil {
			return jobs.Permanent(fmt.Errorf("import job %s has no statement", job.JobID))
		}
		result, err := im.Import(ctx, importer.Request{
			UserID:    job.UserID,
			AccountID: job.Import.AccountID,
			URI:       job.Import.GCSURI,
			MIMEType:  job.Import.MIMEType,
		})
		if err != nil {
			return classify(err)
		}

		job.Result = fmt.Sprintf("%d lines: %d created, %d duplicates, %d failed",
			result.Lines, len(result.Created), result.Duplicates, len(result.Failures))
		return nil
	}
}

// classify marks errors that a retry cannot fix as permanent.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrStateConflict):
		return jobs.Permanent(err)
	}
	return err
}

// Schedule publishes a job of type jt every interval until ctx is
// done. A failed publish is logged and the next tick tries again.
func Schedule(ctx context.Context, publisher jobs.Publisher, jt jobs.JobType, interval time.Duration) {
	log := logger.FromContext(ctx).With().Str("job_type", string(jt)).Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job := &jobs.Job{Type: jt}
			if err := publisher.Publish(ctx, job); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("Failed to schedule job")
				continue
			}
			log.Debug().Str("job_id", job.JobID).Msg("Scheduled job")
		}
	}
}
