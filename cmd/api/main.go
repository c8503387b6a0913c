package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/dvloznov/ledger-engine/internal/api/handlers"
	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/app"
	"github.com/dvloznov/ledger-engine/internal/config"
	"github.com/dvloznov/ledger-engine/internal/jobs"
	"github.com/dvloznov/ledger-engine/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/internal/worker"
)

type cli struct {
	config.Config

	Migrate bool `help:"Apply pending sqlite migrations on startup." env:"LEDGER_AUTO_MIGRATE" default:"true" negatable:""`
}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("api"),
		kong.Description("HTTP API for the ledger, with an in-process job worker."),
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

	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, &c.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger")
	}
	defer a.Close()

	if c.Migrate {
		applied, err := a.Store.Migrate(ctx, "api")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Int("applied", applied).Msg("Schema up to date")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(c.Server.QueueSize, jobStore)

	jobMux := jobs.NewMux()
	a.RegisterJobs(jobMux)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, jobMux.Dispatch); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}
	go worker.Schedule(workerCtx, jobQueue, jobs.JobTypeSweepRecurrences, c.Ledger.SweepInterval)

	mux := handlers.NewRouter(handlers.Services{
		Ledger:    a.Ledger,
		Positions: a.Positions,
		Engine:    a.Engine,
		Jobs:      jobStore,
		Publisher: jobQueue,
		Uploader:  a.Uploader(),
	}, log)

	// Apply middleware
	handler := middleware.RequestID(
		middleware.Recovery(log)(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth("/health")(mux),
				),
			),
		),
	)

	// Create HTTP server
	port := strconv.Itoa(c.Server.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs, then cancel the workers
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
