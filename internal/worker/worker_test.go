package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/export"
	"github.com/dvloznov/ledger-engine/internal/importer"
	"github.com/dvloznov/ledger-engine/internal/jobs"
	"github.com/dvloznov/ledger-engine/internal/ledger"
)

type fakeSweeper struct {
	report ledger.SweepReport
	err    error
}

func (f *fakeSweeper) SweepRecurrences(ctx context.Context) (ledger.SweepReport, error) {
	return f.report, f.err
}

type fakeExporter struct {
	report *export.Report
	err    error
}

func (f *fakeExporter) Run(ctx context.Context) (*export.Report, error) {
	return f.report, f.err
}

type fakeImporter struct {
	got    importer.Request
	result *importer.Result
	err    error
}

func (f *fakeImporter) Import(ctx context.Context, req importer.Request) (*importer.Result, error) {
	f.got = req
	return f.result, f.err
}

func TestSweepHandler(t *testing.T) {
	job := &jobs.Job{Type: jobs.JobTypeSweepRecurrences}
	h := SweepHandler(&fakeSweeper{report: ledger.SweepReport{Processed: 4, Materialized: 6, Failed: 1, Stopped: 2}})
	if err := h(context.Background(), job); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if job.Result != "processed 4, materialized 6, failed 1, stopped 2" {
		t.Errorf("Unexpected result %q", job.Result)
	}

	transient := fmt.Errorf("SweepRecurrences: %w", domain.ErrStorageUnavailable)
	err := SweepHandler(&fakeSweeper{err: transient})(context.Background(), job)
	if err == nil || jobs.IsPermanent(err) {
		t.Errorf("Expected a retryable error, got %v", err)
	}
}

func TestExportHandler(t *testing.T) {
	job := &jobs.Job{Type: jobs.JobTypeExportLedger}
	h := ExportHandler(&fakeExporter{report: &export.Report{RunID: "r1", Accounts: 1, Transactions: 2}})
	if err := h(context.Background(), job); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if job.Result != "run r1: 1 accounts, 2 transactions, 0 events" {
		t.Errorf("Unexpected result %q", job.Result)
	}

	h = ExportHandler(&fakeExporter{report: &export.Report{RunID: "r2"}})
	if err := h(context.Background(), job); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if job.Result != "run r2: nothing changed" {
		t.Errorf("Unexpected result %q", job.Result)
	}
}

func TestImportHandler(t *testing.T) {
	imp := &fakeImporter{result: &importer.Result{
		Lines:      3,
		Created:    []string{"t1"},
		Duplicates: 1,
		Failures:   []importer.LineFailure{{Index: 2, Err: domain.Invalid("currency", "mismatch")}},
	}}
	job := &jobs.Job{
		JobID:  "j1",
		Type:   jobs.JobTypeImportStatement,
		UserID: "u1",
		Import: &jobs.ImportStatementParams{AccountID: "a1", GCSURI: "gs://b/s.pdf", MIMEType: "application/pdf"},
	}

	if err := ImportHandler(imp)(context.Background(), job); err != nil {
		t.Fatalf("handler: %v", err)
	}
	want := importer.Request{UserID: "u1", AccountID: "a1", URI: "gs://b/s.pdf", MIMEType: "application/pdf"}
	if imp.got.UserID != want.UserID || imp.got.AccountID != want.AccountID || imp.got.URI != want.URI || imp.got.MIMEType != want.MIMEType {
		t.Errorf("Expected request %+v, got %+v", want, imp.got)
	}
	if job.Result != "3 lines: 1 created, 1 duplicates, 1 failed" {
		t.Errorf("Unexpected result %q", job.Result)
	}
}

func TestImportHandlerPermanentErrors(t *testing.T) {
	err := ImportHandler(&fakeImporter{})(context.Background(), &jobs.Job{Type: jobs.JobTypeImportStatement})
	if !jobs.IsPermanent(err) {
		t.Errorf("Expected a job without statement to fail permanently, got %v", err)
	}

	job := &jobs.Job{Type: jobs.JobTypeImportStatement, Import: &jobs.ImportStatementParams{AccountID: "a1"}}
	err = ImportHandler(&fakeImporter{err: domain.NotFound("account", "a1")})(context.Background(), job)
	if !jobs.IsPermanent(err) || !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected a permanent not-found error, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	mux := jobs.NewMux()
	Register(mux, &fakeSweeper{}, nil, &fakeImporter{})
	if !mux.Handles(jobs.JobTypeSweepRecurrences) || !mux.Handles(jobs.JobTypeImportStatement) {
		t.Error("Expected sweep and import handlers")
	}
	if mux.Handles(jobs.JobTypeExportLedger) {
		t.Error("Export must stay unregistered without an exporter")
	}
}

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []*jobs.Job
}

func (p *recordingPublisher) Publish(ctx context.Context, job *jobs.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	job.JobID = "scheduled"
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

func TestSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &recordingPublisher{}

	done := make(chan struct{})
	go func() {
		Schedule(ctx, pub, jobs.JobTypeSweepRecurrences, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for pub.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if pub.count() < 2 {
		t.Fatalf("Expected at least 2 scheduled jobs, got %d", pub.count())
	}
	if pub.jobs[0].Type != jobs.JobTypeSweepRecurrences {
		t.Errorf("Unexpected job type %s", pub.jobs[0].Type)
	}
}
