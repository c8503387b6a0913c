package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/dvloznov/ledger-engine/internal/app"
	"github.com/dvloznov/ledger-engine/internal/config"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// Globals defines the flags shared by every command.
type Globals struct {
	config.Config

	User string `help:"User whose ledger the command operates on." env:"LEDGER_USER" short:"u"`
}

// open validates the configuration and wires the ledger for one command.
func (g *Globals) open(kctx *kong.Context) (context.Context, *app.App, error) {
	if err := g.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := g.Log.Logger(kctx.Stderr)
	if err != nil {
		return nil, nil, err
	}
	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, &g.Config)
	if err != nil {
		return nil, nil, err
	}
	if _, err := a.Store.Migrate(ctx, "cli"); err != nil {
		a.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return ctx, a, nil
}

func (g *Globals) user() (string, error) {
	if g.User == "" {
		return "", fmt.Errorf("--user is required for this command")
	}
	return g.User, nil
}

// Commands is the full command tree.
type Commands struct {
	Globals

	Accounts  AccountsCmd  `cmd:"" help:"List the user's accounts with their balances."`
	Balance   BalanceCmd   `cmd:"" help:"Show the balance of one account."`
	Close     CloseCmd     `cmd:"" help:"Close an account to new transactions."`
	Statement StatementCmd `cmd:"" help:"Summarize the credit card statement cycle containing a date."`
	Valuation ValuationCmd `cmd:"" help:"Value the positions of an investment account."`
	Sweep     SweepCmd     `cmd:"" help:"Materialize every recurring transaction that is due."`
	Export    ExportCmd    `cmd:"" help:"Export changed ledger rows to BigQuery."`
	Upload    UploadCmd    `cmd:"" help:"Upload a statement file to GCS and import it."`
	Import    ImportCmd    `cmd:"" help:"Import a statement already stored in GCS."`
}

func main() {
	var cli Commands
	ctx := kong.Parse(&cli,
		kong.Name("ledger"),
		kong.Description("Operate on the ledger from the command line."),
		kong.UsageOnError(),
		kong.Bind(&cli.Globals),
	)

	if err := ctx.Run(); err != nil {
		printError(ctx.Stderr, err.Error())
		os.Exit(1)
	}
}
