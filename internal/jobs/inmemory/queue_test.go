package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/ledger-engine/internal/jobs"
)

// waitFor polls the store until the job reaches a final status.
func waitFor(t *testing.T, store *Store, jobID string) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Done() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return nil
}

func TestQueueDispatchesByType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithWorkers(2))
	defer q.Close()

	mux := jobs.NewMux()
	mux.Handle(jobs.JobTypeSweepRecurrences, func(ctx context.Context, job *jobs.Job) error {
		job.Result = "materialized 3"
		return nil
	})
	if err := q.Start(ctx, mux.Dispatch); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.Job{Type: jobs.JobTypeSweepRecurrences}
	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("Expected a generated job id")
	}

	done := waitFor(t, store, job.JobID)
	if done.Status != jobs.JobStatusCompleted || done.Result != "materialized 3" {
		t.Errorf("Unexpected job %+v", done)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("Expected timestamps on a completed job")
	}
}

func TestQueueRetriesThenFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithRetries(2, time.Millisecond))
	defer q.Close()

	var calls atomic.Int32
	if err := q.Start(ctx, func(ctx context.Context, job *jobs.Job) error {
		calls.Add(1)
		return errors.New("storage busy")
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.Job{Type: jobs.JobTypeExportLedger}
	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	done := waitFor(t, store, job.JobID)
	if done.Status != jobs.JobStatusFailed || done.RetryCount != 2 {
		t.Errorf("Expected failure after 2 retries, got %+v", done)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	if done.Error != "storage busy" {
		t.Errorf("Unexpected error %q", done.Error)
	}
}

func TestQueuePermanentErrorsAreNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithRetries(3, time.Millisecond))
	defer q.Close()

	// No handler registered for imports.
	if err := q.Start(ctx, jobs.NewMux().Dispatch); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.Job{Type: jobs.JobTypeImportStatement}
	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	done := waitFor(t, store, job.JobID)
	if done.Status != jobs.JobStatusFailed || done.RetryCount != 0 {
		t.Errorf("Expected immediate failure, got %+v", done)
	}
}

func TestQueueRecoversFromPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithWorkers(1))
	defer q.Close()

	if err := q.Start(ctx, func(ctx context.Context, job *jobs.Job) error {
		if job.UserID == "bad" {
			panic("boom")
		}
		return nil
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	bad := &jobs.Job{Type: jobs.JobTypeImportStatement, UserID: "bad"}
	good := &jobs.Job{Type: jobs.JobTypeImportStatement, UserID: "good"}
	for _, j := range []*jobs.Job{bad, good} {
		if err := q.Publish(ctx, j); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if got := waitFor(t, store, bad.JobID); got.Status != jobs.JobStatusFailed {
		t.Errorf("Expected panicking job to fail, got %s", got.Status)
	}
	if got := waitFor(t, store, good.JobID); got.Status != jobs.JobStatusCompleted {
		t.Errorf("Expected the worker to survive, got %s", got.Status)
	}
}

func TestPublishValidation(t *testing.T) {
	q := NewQueue(1, nil)
	if err := q.Publish(context.Background(), &jobs.Job{}); err == nil {
		t.Error("Expected an error for a job without type")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Publish(context.Background(), &jobs.Job{Type: jobs.JobTypeExportLedger}); err == nil {
		t.Error("Expected an error after Close")
	}
	if err := q.Start(context.Background(), nil); err == nil {
		t.Error("Expected Start to fail after Close")
	}
}
