package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"

	"github.com/dvloznov/ledger-engine/internal/archive"
	"github.com/dvloznov/ledger-engine/internal/calendar"
	"github.com/dvloznov/ledger-engine/internal/importer"
)

type AccountsCmd struct{}

func (cmd *AccountsCmd) Run(kctx *kong.Context, g *Globals) error {
	userID, err := g.user()
	if err != nil {
		return err
	}
	ctx, a, err := g.open(kctx)
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.Ledger.ListAccounts(ctx, userID)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		printInfof(kctx.Stdout, "No accounts for %s", userID)
		return nil
	}

	rows := make([][]string, 0, len(accounts))
	for _, acc := range accounts {
		balance, err := a.Ledger.AccountBalance(ctx, userID, acc.ID)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", acc.ID, err)
		}
		rows = append(rows, []string{acc.ID, acc.Name, string(acc.Kind), acc.Currency, balance.StringFixed(2)})
	}
	printTable(kctx.Stdout, []string{"ID", "Name", "Kind", "Currency", "Balance"}, rows)
	return nil
}

type BalanceCmd struct {
	Account string `arg:"" help:"Account id."`
}

func (cmd *BalanceCmd) Run(kctx *kong.Context, g *Globals) error {
	userID, err := g.user()
	if err != nil {
		return err
	}
	ctx, a, err := g.open(kctx)
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.Ledger.GetAccount(ctx, userID, cmd.Account)
	if err != nil {
		return err
	}
	balance, err := a.Ledger.AccountBalance(ctx, userID, acc.ID)
	if err != nil {
		return err
	}
	printInfof(kctx.Stdout, "%s: %s %s", acc.Name, balance.StringFixed(2), acc.Currency)
	return nil
}

type CloseCmd struct {
	Account string `arg:"" help:"Account id."`
}

func (cmd *CloseCmd) Run(kctx *kong.Context, g *Globals) error {
	userID, err := g.user()
	if err != nil {
		return err
	}
	ctx, a, err := g.open(kctx)
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.Ledger.CloseAccount(ctx, userID, cmd.Account)
	if err != nil {
		return err
	}
	printSuccess(kctx.Stdout, "Closed %s", acc.Name)
	return nil
}

type StatementCmd struct {
	Account string `arg:"" help:"Credit card account id."`
	Date    string `help:"Any date inside the cycle (YYYY-MM-DD). Defaults to today."`
}

func (cmd *StatementCmd) Run(kctx *kong.Context, g *Globals) error {
	userID, err := g.user()
	if err != nil {
		return err
	}
	ctx, a, err := g.open(kctx)
	if err != nil {
		return err
	}
	defer a.Close()

	date := a.Ledger.Today()
	if cmd.Date != "" {
		if date, err = calendar.Parse(cmd.Date); err != nil {
			return err
		}
	}

	s, err := a.Ledger.Statement(ctx, userID, cmd.Account, date)
	if err != nil {
		return err
	}
	printTable(kctx.Stdout,
		[]string{"Start", "Closing", "Payment", "Open", "Settled", "Balance"},
		[][]string{{
			s.Cycle.Start.String(), s.Cycle.Closing.String(), s.Cycle.Payment.String(),
			s.Open.StringFixed(2), s.Settled.StringFixed(2), s.Balance.StringFixed(2),
		}},
	)
	return nil
}

type ValuationCmd struct {
	Account string `arg:"" help:"Investment account id."`
}

func (cmd *ValuationCmd) Run(kctx *kong.Context, g *Globals) error {
	userID, err := g.user()
	if err != nil {
		return err
	}
	ctx, a, err := g.open(kctx)
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.Engine.Valuation(ctx, userID, cmd.Account)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(v.Assets))
	for _, asset := range v.Assets {
		price := ""
		if !asset.Price.IsZero() {
			price = asset.Price.String()
		}
		rows = append(rows, []string{asset.Asset, string(asset.Category), asset.Quantity.String(), price, asset.CostBasis.StringFixed(2), asset.Value.StringFixed(2)})
	}
	if len(rows) > 0 {
		printTable(kctx.Stdout, []string{"Asset", "Category", "Quantity", "Price", "Cost", "Value"}, rows)
	}
	for _, s := range v.Skipped {
		printError(kctx.Stdout, fmt.Sprintf("%s skipped: %s", s.Asset, s.Reason))
	}
	printInfof(kctx.Stdout, "Total as of %s: %s %s", v.AsOf, v.Total.StringFixed(2), v.Currency)
	return nil
}

type SweepCmd struct{}

func (cmd *SweepCmd) Run(kctx *kong.Context, g *Globals) error {
	ctx, a, err := g.open(kctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Ledger.SweepRecurrences(ctx)
	if err != nil {
		return err
	}
	printSuccess(kctx.Stdout, "Processed %d recurrences, materialized %d occurrences, %d failed, %d stopped",
		report.Processed, report.Materialized, report.Failed, report.Stopped)
	return nil
}

type ExportCmd struct{}

func (cmd *ExportCmd) Run(kctx *kong.Context, g *Globals) error {
	ctx, a, err := g.open(kctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Exporter == nil {
		return fmt.Errorf("export is disabled: set --gcp-project and --gcp-dataset")
	}
	report, err := a.Exporter.Run(ctx)
	if err != nil {
		return err
	}
	if report.Empty() {
		printInfof(kctx.Stdout, "Nothing changed since %s", report.Since.Format(time.RFC3339))
		return nil
	}
	printSuccess(kctx.Stdout, "Exported %d accounts, %d transactions and %d events (run %s)",
		report.Accounts, report.Transactions, report.Events, report.RunID)
	if report.SnapshotURI != "" {
		printInfof(kctx.Stdout, "Snapshot written to %s", report.SnapshotURI)
	}
	return nil
}

type UploadCmd struct {
	File       string   `arg:"" type:"existingfile" help:"Statement file to upload."`
	Account    string   `required:"" help:"Account the statement belongs to."`
	Categories []string `help:"Category names the parser may assign."`
}

func (cmd *UploadCmd) Run(kctx *kong.Context, g *Globals) error {
	userID, err := g.user()
	if err != nil {
		return err
	}
	ctx, a, err := g.open(kctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Archive == nil {
		return fmt.Errorf("statement storage is disabled: set --gcp-bucket")
	}

	f, err := os.Open(cmd.File)
	if err != nil {
		return err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(cmd.File))
	if contentType == "" {
		contentType = "application/pdf"
	}
	uri, err := a.Archive.Upload(ctx, archive.StatementObjectName(userID, cmd.File, time.Now()), contentType, f)
	if err != nil {
		return err
	}
	printSuccess(kctx.Stdout, "Uploaded to %s", uri)

	return runImport(ctx, kctx.Stdout, a.Importer, importer.Request{
		UserID:     userID,
		AccountID:  cmd.Account,
		URI:        uri,
		MIMEType:   contentType,
		Categories: cmd.Categories,
	})
}

type ImportCmd struct {
	URI        string   `arg:"" help:"gs:// URI of the statement."`
	Account    string   `required:"" help:"Account the statement belongs to."`
	Categories []string `help:"Category names the parser may assign."`
}

func (cmd *ImportCmd) Run(kctx *kong.Context, g *Globals) error {
	userID, err := g.user()
	if err != nil {
		return err
	}
	if _, _, err := archive.ParseURI(cmd.URI); err != nil {
		return err
	}
	ctx, a, err := g.open(kctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return runImport(ctx, kctx.Stdout, a.Importer, importer.Request{
		UserID:     userID,
		AccountID:  cmd.Account,
		URI:        cmd.URI,
		Categories: cmd.Categories,
	})
}

func runImport(ctx context.Context, out io.Writer, im *importer.Importer, req importer.Request) error {
	if im == nil {
		return fmt.Errorf("statement imports are disabled: set --gcp-bucket and --gcp-project")
	}
	res, err := im.Import(ctx, req)
	if err != nil {
		return err
	}
	for _, f := range res.Failures {
		printError(out, fmt.Sprintf("line %d (%s): %v", f.Index, f.Description, f.Err))
	}
	printSuccess(out, "%d lines: %d created, %d duplicates, %d failed",
		res.Lines, len(res.Created), res.Duplicates, len(res.Failures))
	return nil
}
