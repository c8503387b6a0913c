package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"

	"cloud.google.com/go/bigquery"
	"github.com/alecthomas/kong"

	"github.com/dvloznov/ledger-engine/internal/config"
	infraBQ "github.com/dvloznov/ledger-engine/internal/infra/bigquery"
	"github.com/dvloznov/ledger-engine/internal/infra/sqlite"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

type cli struct {
	config.Config

	Target    string `help:"Which schema to migrate." enum:"sqlite,bigquery" default:"sqlite"`
	AppliedBy string `help:"Identifier recorded with each applied migration." default:"${user}"`
}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("migrate"),
		kong.Description("Apply pending schema migrations to the ledger store or the BigQuery export dataset."),
		kong.Vars{"user": currentUser()},
	)

	log, err := c.Log.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := logger.WithContext(context.Background(), log)
	if err := run(ctx, &c, os.Stdout); err != nil {
		log.Fatal().Err(err).Str("target", c.Target).Msg("Migration failed")
	}
}

func run(ctx context.Context, c *cli, out io.Writer) error {
	var (
		applied int
		err     error
	)
	switch c.Target {
	case "sqlite":
		applied, err = migrateSQLite(ctx, c)
	case "bigquery":
		applied, err = migrateBigQuery(ctx, c)
	default:
		return fmt.Errorf("unknown target %q", c.Target)
	}
	if err != nil {
		return err
	}

	if applied == 0 {
		fmt.Fprintln(out, "No pending migrations.")
	} else {
		fmt.Fprintf(out, "Successfully applied %d migration(s).\n", applied)
	}
	return nil
}

func migrateSQLite(ctx context.Context, c *cli) (int, error) {
	store, err := sqlite.Open(ctx, c.Database.Store())
	if err != nil {
		return 0, fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	log := logger.FromContext(ctx)
	log.Info().Str("path", c.Database.Path).Msg("Migrating ledger store")
	return store.Migrate(ctx, c.AppliedBy)
}

func migrateBigQuery(ctx context.Context, c *cli) (int, error) {
	if !c.Cloud.ExportEnabled() {
		return 0, fmt.Errorf("--gcp-project and --gcp-dataset are required for the bigquery target")
	}

	client, err := bigquery.NewClient(ctx, c.Cloud.Project)
	if err != nil {
		return 0, fmt.Errorf("creating BigQuery client: %w", err)
	}
	defer client.Close()

	ds := infraBQ.Dataset{ProjectID: c.Cloud.Project, DatasetID: c.Cloud.Dataset}
	log := logger.FromContext(ctx)
	log.Info().
		Str("project", ds.ProjectID).
		Str("dataset", ds.DatasetID).
		Msg("Migrating export dataset")
	return infraBQ.Migrate(ctx, client, ds, c.AppliedBy)
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
