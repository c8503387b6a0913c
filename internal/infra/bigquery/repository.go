// Package bigquery mirrors the ledger into BigQuery tables for analytics and
// applies the dataset's migrations.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// ExportRepository writes ledger rows and export run bookkeeping. It holds a
// shared BigQuery client to avoid creating a connection per operation.
type ExportRepository struct {
	client  *bigquery.Client
	dataset Dataset
}

// NewExportRepository creates a repository with its own client.
func NewExportRepository(ctx context.Context, ds Dataset) (*ExportRepository, error) {
	client, err := bigquery.NewClient(ctx, ds.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewExportRepository: creating client: %w", err)
	}
	return &ExportRepository{client: client, dataset: ds}, nil
}

// Close closes the BigQuery client connection.
func (r *ExportRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Batch is one run's worth of changed entities.
type Batch struct {
	RunID        string
	ExportedAt   time.Time
	Accounts     []domain.Account
	Transactions []domain.Transaction
	Events       []domain.InvestmentEvent
}

// WriteBatch converts and streams the three tables concurrently.
func (r *ExportRepository) WriteBatch(ctx context.Context, b Batch) error {
	accounts := make([]*AccountRow, 0, len(b.Accounts))
	for _, a := range b.Accounts {
		accounts = append(accounts, NewAccountRow(a, b.RunID, b.ExportedAt))
	}
	txs := make([]*TransactionRow, 0, len(b.Transactions))
	for _, t := range b.Transactions {
		txs = append(txs, NewTransactionRow(t, b.RunID, b.ExportedAt))
	}
	events := make([]*InvestmentEventRow, 0, len(b.Events))
	for _, e := range b.Events {
		events = append(events, NewInvestmentEventRow(e, b.RunID, b.ExportedAt))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return InsertAccountsWithClient(gctx, r.client, r.dataset, accounts) })
	g.Go(func() error { return InsertTransactionsWithClient(gctx, r.client, r.dataset, txs) })
	g.Go(func() error { return InsertInvestmentEventsWithClient(gctx, r.client, r.dataset, events) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("WriteBatch: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("export_run_id", b.RunID).
		Int("accounts", len(accounts)).
		Int("transactions", len(txs)).
		Int("events", len(events)).
		Msg("Export batch written")
	return nil
}

// StartRun delegates to StartExportRunWithClient with the shared client.
func (r *ExportRepository) StartRun(ctx context.Context, runID string, started time.Time) error {
	return StartExportRunWithClient(ctx, r.client, r.dataset, runID, started)
}

// FinishRun delegates to FinishExportRunWithClient with the shared client.
func (r *ExportRepository) FinishRun(ctx context.Context, run *ExportRunRow) error {
	return FinishExportRunWithClient(ctx, r.client, r.dataset, run)
}

// LastWatermark delegates to LastWatermarkWithClient with the shared client.
func (r *ExportRepository) LastWatermark(ctx context.Context) (time.Time, error) {
	return LastWatermarkWithClient(ctx, r.client, r.dataset)
}
