// Package app assembles the ledger, its storage and the optional cloud
// integrations from a config.Config. The binaries share it so they wire
// the same collaborators the same way.
package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-engine/internal/api/handlers"
	"github.com/dvloznov/ledger-engine/internal/archive"
	"github.com/dvloznov/ledger-engine/internal/config"
	"github.com/dvloznov/ledger-engine/internal/export"
	"github.com/dvloznov/ledger-engine/internal/importer"
	infraBQ "github.com/dvloznov/ledger-engine/internal/infra/bigquery"
	"github.com/dvloznov/ledger-engine/internal/infra/sqlite"
	"github.com/dvloznov/ledger-engine/internal/jobs"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/internal/position"
	"github.com/dvloznov/ledger-engine/internal/quotes"
	"github.com/dvloznov/ledger-engine/internal/worker"
)

// App holds the wired collaborators. Archive, Exporter and Importer are nil
// when the configuration does not enable them.
type App struct {
	Store     *sqlite.Store
	Ledger    *ledger.Ledger
	Positions *position.Service
	Engine    *position.Engine
	Quotes    *quotes.Static

	Archive  *archive.Archive
	Exporter *export.Exporter
	Importer *importer.Importer

	closers []func() error
}

// New opens the store and builds every collaborator cfg enables.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)

	loc, err := cfg.Ledger.Location()
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	store, err := sqlite.Open(ctx, cfg.Database.Store())
	if err != nil {
		return nil, fmt.Errorf("New: open store: %w", err)
	}
	a := &App{Store: store}
	a.closers = append(a.closers, store.Close)

	if cfg.Ledger.QuotesFile != "" {
		a.Quotes, err = quotes.LoadFile(cfg.Ledger.QuotesFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
	} else {
		log.Warn().Msg("No quotes file configured - market assets cannot be valued")
		a.Quotes = quotes.NewStatic()
	}

	a.Engine = position.NewEngine(store.Positions(), a.Quotes)
	a.Positions = position.NewService(store.Positions())
	a.Ledger = ledger.New(store.Ledger(),
		ledger.WithLocation(loc),
		ledger.WithValuer(a.Engine),
		ledger.WithSweepLimit(cfg.Ledger.SweepLimit),
	)

	if cfg.Cloud.Bucket != "" {
		a.Archive, err = archive.New(ctx, cfg.Cloud.Bucket)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, a.Archive.Close)

		parser, err := importer.NewGeminiParser(ctx, importer.GeminiConfig{
			Model:    cfg.Cloud.GeminiModel,
			Project:  cfg.Cloud.Project,
			Location: cfg.Cloud.Location,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Statement parser unavailable - imports disabled")
		} else {
			a.Importer = importer.New(a.Archive, parser, a.Ledger)
		}
	} else {
		log.Warn().Msg("No GCS bucket configured - statement imports and snapshots disabled")
	}

	if cfg.Cloud.ExportEnabled() {
		repo, err := infraBQ.NewExportRepository(ctx, infraBQ.Dataset{
			ProjectID: cfg.Cloud.Project,
			DatasetID: cfg.Cloud.Dataset,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, repo.Close)

		var opts []export.Option
		if a.Archive != nil {
			opts = append(opts, export.WithSnapshots(a.Archive))
		}
		a.Exporter = export.New(store, repo, opts...)
	}

	return a, nil
}

// RegisterJobs installs the handlers for every job type this App can run.
func (a *App) RegisterJobs(mux *jobs.Mux) {
	var exp worker.Exporter
	if a.Exporter != nil {
		exp = a.Exporter
	}
	var imp worker.Importer
	if a.Importer != nil {
		imp = a.Importer
	}
	worker.Register(mux, a.Ledger, exp, imp)
}

// Uploader returns the statement uploader, or nil without a bucket.
func (a *App) Uploader() handlers.Uploader {
	if a.Archive == nil {
		return nil
	}
	return a.Archive
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
