package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	accountsTable     = "ledger_accounts"
	transactionsTable = "ledger_transactions"
	eventsTable       = "ledger_investment_events"
	exportRunsTable   = "export_runs"

	// BigQuery rejects streaming inserts larger than this many rows per request.
	insertBatchSize = 500
)

// Dataset names the project and dataset the export writes to.
type Dataset struct {
	ProjectID string
	DatasetID string
}

func (d Dataset) table(client *bigquery.Client, name string) *bigquery.Table {
	return client.DatasetInProject(d.ProjectID, d.DatasetID).Table(name)
}

func (d Dataset) qualified(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// putBatches streams rows into table in batches.
func putBatches[T any](ctx context.Context, table *bigquery.Table, rows []*T) error {
	inserter := table.Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("inserting rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// InsertAccountsWithClient streams account rows into ledger_accounts.
func InsertAccountsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*AccountRow) error {
	if err := putBatches(ctx, ds.table(client, accountsTable), rows); err != nil {
		return fmt.Errorf("InsertAccounts: %w", err)
	}
	return nil
}

// InsertTransactionsWithClient streams transaction rows into ledger_transactions.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*TransactionRow) error {
	if err := putBatches(ctx, ds.table(client, transactionsTable), rows); err != nil {
		return fmt.Errorf("InsertTransactions: %w", err)
	}
	return nil
}

// InsertInvestmentEventsWithClient streams event rows into ledger_investment_events.
func InsertInvestmentEventsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*InvestmentEventRow) error {
	if err := putBatches(ctx, ds.table(client, eventsTable), rows); err != nil {
		return fmt.Errorf("InsertInvestmentEvents: %w", err)
	}
	return nil
}

// StartExportRunWithClient records a RUNNING export run.
func StartExportRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string, started time.Time) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s (export_run_id, started_at, status)
		VALUES (@export_run_id, @started_at, @status)
	`, ds.qualified(exportRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "export_run_id", Value: runID},
		{Name: "started_at", Value: started},
		{Name: "status", Value: RunRunning},
	}
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("StartExportRun: %w", err)
	}
	return nil
}

// FinishExportRunWithClient stores the outcome of a run.
func FinishExportRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, run *ExportRunRow) error {
	errMsg := ""
	if run.ErrorMessage.Valid {
		errMsg = run.ErrorMessage.StringVal
		const maxLen = 2000
		if len(errMsg) > maxLen {
			errMsg = errMsg[:maxLen]
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_at = @finished_at,
		    watermark = @watermark,
		    accounts = @accounts,
		    transactions = @transactions,
		    events = @events,
		    snapshot_uri = @snapshot_uri,
		    error_message = @error_message
		WHERE export_run_id = @export_run_id
	`, ds.qualified(exportRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: run.Status},
		{Name: "finished_at", Value: run.FinishedAt},
		{Name: "watermark", Value: run.Watermark},
		{Name: "accounts", Value: run.Accounts},
		{Name: "transactions", Value: run.Transactions},
		{Name: "events", Value: run.Events},
		{Name: "snapshot_uri", Value: run.SnapshotURI},
		{Name: "error_message", Value: errMsg},
		{Name: "export_run_id", Value: run.ExportRunID},
	}
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("FinishExportRun: %w", err)
	}
	return nil
}

// LastWatermarkWithClient returns the watermark of the latest successful run,
// or the zero time when no run succeeded yet.
func LastWatermarkWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) (time.Time, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT MAX(watermark) AS watermark
		FROM %s
		WHERE status = @status
	`, ds.qualified(exportRunsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "status", Value: RunSuccess}}

	it, err := q.Read(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("LastWatermark: running query: %w", err)
	}

	var latest time.Time
	for {
		var row struct {
			Watermark bigquery.NullTimestamp `bigquery:"watermark"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("LastWatermark: reading row: %w", err)
		}
		if row.Watermark.Valid {
			latest = row.Watermark.Timestamp
		}
	}
	return latest, nil
}

func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
