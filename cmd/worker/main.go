package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/dvloznov/ledger-engine/internal/app"
	"github.com/dvloznov/ledger-engine/internal/config"
	"github.com/dvloznov/ledger-engine/internal/jobs"
	"github.com/dvloznov/ledger-engine/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/internal/worker"
)

type cli struct {
	config.Config

	ExportInterval time.Duration `help:"How often to export to BigQuery (0 disables)." env:"EXPORT_INTERVAL" default:"6h"`
}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("worker"),
		kong.Description("Background worker: sweeps due recurrences and exports the ledger on a schedule."),
	)

	// Initialize logger
	log, err := c.Log.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := c.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a, err := app.New(ctx, &c.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger")
	}
	defer a.Close()

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(c.Server.QueueSize, jobStore)

	jobMux := jobs.NewMux()
	a.RegisterJobs(jobMux)

	log.Info().Msg("Starting worker service")

	// Start consuming jobs
	if err := jobQueue.Start(ctx, jobMux.Dispatch); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	go worker.Schedule(ctx, jobQueue, jobs.JobTypeSweepRecurrences, c.Ledger.SweepInterval)
	if jobMux.Handles(jobs.JobTypeExportLedger) && c.ExportInterval > 0 {
		go worker.Schedule(ctx, jobQueue, jobs.JobTypeExportLedger, c.ExportInterval)
	}

	// Catch up on anything that came due while the worker was down.
	if err := jobQueue.Publish(ctx, &jobs.Job{Type: jobs.JobTypeSweepRecurrences}); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue startup sweep")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	// Cancel context to stop the schedulers
	cancel()

	log.Info().Msg("Worker service exited")
}
