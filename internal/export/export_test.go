package export

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/ledger-engine/internal/archive"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/infra/bigquery"
	"github.com/dvloznov/ledger-engine/internal/infra/sqlite"
)

type fakeSource struct {
	changes *sqlite.Changes
	err     error
	since   time.Time
}

func (f *fakeSource) ChangesSince(_ context.Context, since time.Time) (*sqlite.Changes, error) {
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	c := *f.changes
	if c.Watermark.IsZero() {
		c.Watermark = since
	}
	return &c, nil
}

type fakeSink struct {
	mu        sync.Mutex
	watermark time.Time
	started   []string
	batches   []bigquery.Batch
	finished  []*bigquery.ExportRunRow
	writeErr  error
}

func (f *fakeSink) LastWatermark(context.Context) (time.Time, error) { return f.watermark, nil }

func (f *fakeSink) StartRun(_ context.Context, runID string, _ time.Time) error {
	f.started = append(f.started, runID)
	return nil
}

func (f *fakeSink) WriteBatch(_ context.Context, b bigquery.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.batches = append(f.batches, b)
	return nil
}

func (f *fakeSink) FinishRun(_ context.Context, run *bigquery.ExportRunRow) error {
	f.finished = append(f.finished, run)
	if run.Status == bigquery.RunSuccess && run.Watermark.Valid {
		f.watermark = run.Watermark.Timestamp
	}
	return nil
}

type fakeSnapshots struct {
	records int
}

func (f *fakeSnapshots) WriteSnapshot(_ context.Context, runID string, _ time.Time, s archive.Snapshot) (string, error) {
	f.records += s.Len()
	return "gs://archive/" + runID + ".jsonl", nil
}

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newExporter(src Source, sink Sink, opts ...Option) *Exporter {
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithRunIDGenerator(func() string { return "run-1" }),
	}, opts...)
	return New(src, sink, opts...)
}

func TestRunExportsChangesAndAdvancesWatermark(t *testing.T) {
	mark := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{changes: &sqlite.Changes{
		Accounts:     []domain.Account{{ID: "a1"}},
		Transactions: []domain.Transaction{{ID: "t1"}, {ID: "t2"}},
		Watermark:    mark,
	}}
	sink := &fakeSink{}
	snaps := &fakeSnapshots{}

	report, err := newExporter(src, sink, WithSnapshots(snaps)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Accounts != 1 || report.Transactions != 2 || report.Events != 0 {
		t.Errorf("Unexpected counts %+v", report)
	}
	if len(sink.batches) != 1 || sink.batches[0].RunID != "run-1" || !sink.batches[0].ExportedAt.Equal(fixedNow) {
		t.Fatalf("Unexpected batches %+v", sink.batches)
	}
	if snaps.records != 3 || report.SnapshotURI != "gs://archive/run-1.jsonl" {
		t.Errorf("Snapshot not written: %d records, uri %q", snaps.records, report.SnapshotURI)
	}

	run := sink.finished[0]
	if run.Status != bigquery.RunSuccess || !run.Watermark.Timestamp.Equal(mark) {
		t.Errorf("Unexpected finished run %+v", run)
	}
	if run.SnapshotURI.StringVal != report.SnapshotURI || run.Transactions != 2 {
		t.Errorf("Run row missing details %+v", run)
	}
	if !sink.watermark.Equal(mark) {
		t.Errorf("Expected watermark %v, got %v", mark, sink.watermark)
	}
}

func TestRunWithNothingChanged(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{changes: &sqlite.Changes{}}
	sink := &fakeSink{watermark: since}
	snaps := &fakeSnapshots{}

	report, err := newExporter(src, sink, WithSnapshots(snaps)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Empty() {
		t.Errorf("Expected an empty report, got %+v", report)
	}
	if !src.since.Equal(since) {
		t.Errorf("Expected changes read since %v, got %v", since, src.since)
	}
	if len(sink.batches) != 0 || snaps.records != 0 {
		t.Error("Expected no batch and no snapshot")
	}
	if !sink.watermark.Equal(since) {
		t.Errorf("Watermark moved to %v", sink.watermark)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	src := &fakeSource{changes: &sqlite.Changes{
		Transactions: []domain.Transaction{{ID: "t1"}},
		Watermark:    fixedNow,
	}}
	sink := &fakeSink{writeErr: errors.New("quota exceeded")}

	_, err := newExporter(src, sink).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("Expected write error, got %v", err)
	}

	run := sink.finished[0]
	if run.Status != bigquery.RunFailed || run.Watermark.Valid {
		t.Errorf("Expected FAILED run without watermark, got %+v", run)
	}
	if !strings.Contains(run.ErrorMessage.StringVal, "quota exceeded") {
		t.Errorf("Error message not recorded: %q", run.ErrorMessage.StringVal)
	}
	if !sink.watermark.IsZero() {
		t.Errorf("Watermark must not move after a failure, got %v", sink.watermark)
	}
}

func TestRunSourceError(t *testing.T) {
	src := &fakeSource{err: domain.ErrStorageUnavailable}
	sink := &fakeSink{}

	_, err := newExporter(src, sink).Run(context.Background())
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("Expected storage unavailable, got %v", err)
	}
	if len(sink.started) != 1 || sink.finished[0].Status != bigquery.RunFailed {
		t.Errorf("Expected a started and failed run, got %v %+v", sink.started, sink.finished)
	}
}
