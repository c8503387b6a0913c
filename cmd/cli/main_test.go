package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/app"
	"github.com/dvloznov/ledger-engine/internal/config"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
)

// seed creates a checking account in a fresh database and returns its path
// and the account id.
func seed(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	a, err := app.New(ctx, &config.Config{
		Database: config.Database{Path: dbPath, Retries: 1},
		Ledger:   config.Ledger{Timezone: "UTC", SweepLimit: 10},
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	defer a.Close()
	if _, err := a.Store.Migrate(ctx, "test"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	acc, err := a.Ledger.CreateAccount(ctx, "u1", ledger.NewAccount{
		Name: "Checking", Kind: domain.AccountChecking, Currency: "BRL", OpeningBalance: decimal.RequireFromString("10"),
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return dbPath, acc.ID
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli Commands
	out := &bytes.Buffer{}
	parser, err := kong.New(&cli,
		kong.Name("ledger"),
		kong.Writers(out, &bytes.Buffer{}),
		kong.Bind(&cli.Globals),
		kong.Exit(func(int) { t.Fatal("unexpected exit") }),
	)
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	err = kctx.Run()
	return out.String(), err
}

func TestAccountsAndBalance(t *testing.T) {
	dbPath, accountID := seed(t)

	out, err := run(t, "accounts", "--user", "u1", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if !strings.Contains(out, "Checking") || !strings.Contains(out, "10.00") {
		t.Errorf("Expected the account row, got:\n%s", out)
	}

	out, err = run(t, "balance", accountID, "--user", "u1", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !strings.Contains(out, "Checking: 10.00 BRL") {
		t.Errorf("Unexpected balance output: %s", out)
	}

	out, err = run(t, "accounts", "--user", "u2", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if !strings.Contains(out, "No accounts for u2") {
		t.Errorf("Expected no accounts for another user, got: %s", out)
	}

	out, err = run(t, "close", accountID, "--user", "u1", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !strings.Contains(out, "Closed Checking") {
		t.Errorf("Unexpected close output: %s", out)
	}
	if _, err := run(t, "close", accountID, "--user", "u1", "--db-path", dbPath); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("Expected conflict closing twice, got %v", err)
	}
}

func TestCommandErrors(t *testing.T) {
	dbPath, accountID := seed(t)

	if _, err := run(t, "balance", accountID, "--db-path", dbPath); err == nil || !strings.Contains(err.Error(), "--user") {
		t.Errorf("Expected a missing user error, got %v", err)
	}
	if _, err := run(t, "balance", "missing", "--user", "u1", "--db-path", dbPath); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := run(t, "statement", accountID, "--user", "u1", "--db-path", dbPath); err == nil {
		t.Error("Expected a statement of a checking account to fail")
	}
	if _, err := run(t, "export", "--db-path", dbPath); err == nil || !strings.Contains(err.Error(), "export is disabled") {
		t.Errorf("Expected export to be disabled, got %v", err)
	}
	if _, err := run(t, "import", "not-a-uri", "--account", accountID, "--user", "u1", "--db-path", dbPath); err == nil {
		t.Error("Expected an invalid URI to be rejected")
	}
}

func TestSweep(t *testing.T) {
	dbPath, _ := seed(t)

	out, err := run(t, "sweep", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "Processed 0 recurrences") {
		t.Errorf("Unexpected sweep output: %s", out)
	}
}
