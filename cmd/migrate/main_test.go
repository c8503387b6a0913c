package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
)

func parse(t *testing.T, args ...string) *cli {
	t.Helper()
	var c cli
	parser, err := kong.New(&c, kong.Name("migrate"), kong.Vars{"user": "tester"}, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	if err != nil {
		t.Fatalf("building parser: %v", err)
	}
	if _, err := parser.Parse(args); err != nil {
		t.Fatalf("parsing %v: %v", args, err)
	}
	return &c
}

func TestDefaults(t *testing.T) {
	c := parse(t)
	if c.Target != "sqlite" {
		t.Errorf("Expected sqlite target by default, got %s", c.Target)
	}
	if c.AppliedBy != "tester" {
		t.Errorf("Expected applied-by from vars, got %s", c.AppliedBy)
	}
}

func TestMigrateSQLiteTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	c := parse(t, "--db-path="+path)

	var out bytes.Buffer
	if err := run(context.Background(), c, &out); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !strings.Contains(out.String(), "Successfully applied 2 migration(s).") {
		t.Errorf("Unexpected output %q", out.String())
	}

	out.Reset()
	if err := run(context.Background(), c, &out); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(out.String(), "No pending migrations.") {
		t.Errorf("Expected nothing pending, got %q", out.String())
	}
}

func TestBigQueryTargetNeedsProject(t *testing.T) {
	t.Setenv("GCP_PROJECT", "")
	c := parse(t, "--target=bigquery")

	err := run(context.Background(), c, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "--gcp-project") {
		t.Errorf("Expected missing project error, got %v", err)
	}
}

func TestUnknownTargetRejected(t *testing.T) {
	var c cli
	parser, err := kong.New(&c, kong.Vars{"user": "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parser.Parse([]string{"--target=postgres"}); err == nil {
		t.Error("Expected enum error for unknown target")
	}
}
