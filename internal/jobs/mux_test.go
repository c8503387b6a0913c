package jobs

import (
	"context"
	"errors"
	"testing"
)

func TestMuxDispatch(t *testing.T) {
	m := NewMux()
	var got JobType
	m.Handle(JobTypeExportLedger, func(ctx context.Context, job *Job) error {
		got = job.Type
		return nil
	})

	if !m.Handles(JobTypeExportLedger) || m.Handles(JobTypeImportStatement) {
		t.Fatal("Unexpected registrations")
	}
	if err := m.Dispatch(context.Background(), &Job{Type: JobTypeExportLedger}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got != JobTypeExportLedger {
		t.Errorf("Handler not called, got %q", got)
	}

	err := m.Dispatch(context.Background(), &Job{Type: JobTypeImportStatement})
	if err == nil || !IsPermanent(err) {
		t.Errorf("Expected a permanent error for an unknown type, got %v", err)
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad input")
	err := Permanent(base)
	if !IsPermanent(err) || !errors.Is(err, base) {
		t.Errorf("Permanent lost the wrapped error: %v", err)
	}
	if IsPermanent(base) {
		t.Error("Plain errors are not permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
}

func TestJobDone(t *testing.T) {
	for status, want := range map[JobStatus]bool{
		JobStatusPending:   false,
		JobStatusRunning:   false,
		JobStatusRetrying:  false,
		JobStatusCompleted: true,
		JobStatusFailed:    true,
	} {
		if got := (&Job{Status: status}).Done(); got != want {
			t.Errorf("Done() for %s = %v, want %v", status, got, want)
		}
	}
}
