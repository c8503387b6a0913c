// Package config holds the settings shared by every binary. The structs carry
// kong tags so they can be embedded in a command line and filled from flags
// or the environment.
package config

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/infra/sqlite"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// Database configures the sqlite store.
type Database struct {
	Path          string        `help:"Path to the ledger database file." env:"LEDGER_DB_PATH" default:"data/ledger.db"`
	MaxConns      int           `help:"Maximum open connections." env:"LEDGER_DB_MAX_CONNS" default:"4"`
	Retries       int           `help:"Retries for transient storage errors." env:"LEDGER_DB_RETRIES" default:"3"`
	RetryBackoff  time.Duration `help:"Linear backoff step between retries." env:"LEDGER_DB_RETRY_BACKOFF" default:"100ms"`
	BusyTimeout   time.Duration `help:"How long a writer waits for the database lock." env:"LEDGER_DB_BUSY_TIMEOUT" default:"5s"`
	LeakThreshold time.Duration `help:"Warn when a transaction stays open longer than this." env:"LEDGER_DB_LEAK_THRESHOLD" default:"10s"`
}

// Store returns the sqlite configuration for these settings.
func (d Database) Store() sqlite.Config {
	cfg := sqlite.DefaultConfig(d.Path)
	if d.MaxConns > 0 {
		cfg.MaxOpenConns = d.MaxConns
	}
	cfg.RetryAttempts = d.Retries
	if d.RetryBackoff > 0 {
		cfg.RetryBackoff = d.RetryBackoff
	}
	if d.BusyTimeout > 0 {
		cfg.BusyTimeout = d.BusyTimeout
	}
	if d.LeakThreshold > 0 {
		cfg.LeakThreshold = d.LeakThreshold
	}
	return cfg
}

// Log configures the process logger.
type Log struct {
	Level  string `help:"Log level (debug, info, warn, error)." env:"LEDGER_LOG_LEVEL" default:"info"`
	Format string `help:"Log format." env:"LEDGER_LOG_FORMAT" enum:"console,json" default:"console"`
}

// Logger builds the logger described by l.
func (l Log) Logger(w io.Writer) (zerolog.Logger, error) {
	return logger.NewFromConfig(l.Level, l.Format, w)
}

// Cloud configures the Google Cloud integrations. Empty values disable the
// feature that needs them.
type Cloud struct {
	Project     string `help:"Google Cloud project id." env:"GCP_PROJECT"`
	Dataset     string `help:"BigQuery dataset for the ledger export." env:"BQ_DATASET" default:"finance"`
	Bucket      string `help:"GCS bucket for snapshots and statement files." env:"GCS_BUCKET"`
	GeminiModel string `help:"Gemini model used to parse statements." env:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	Location    string `help:"Vertex AI location." env:"GCP_LOCATION" default:"us-central1"`
}

// ExportEnabled reports whether the BigQuery export can run.
func (c Cloud) ExportEnabled() bool { return c.Project != "" && c.Dataset != "" }

// Ledger configures the ledger itself.
type Ledger struct {
	Timezone      string        `help:"Time zone in which \"today\" is evaluated." env:"LEDGER_TIMEZONE" default:"UTC"`
	SweepInterval time.Duration `help:"How often the worker sweeps due recurrences." env:"SWEEP_INTERVAL" default:"1h"`
	SweepLimit    int           `help:"Maximum occurrences materialized per parent per sweep." env:"LEDGER_SWEEP_LIMIT" default:"400"`
	QuotesFile    string        `help:"JSON file with prices, FX rates and index rates." env:"LEDGER_QUOTES_FILE"`
}

// Location resolves the configured time zone.
func (l Ledger) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("Location: %w", err)
	}
	return loc, nil
}

// Server configures the HTTP API.
type Server struct {
	Port            int           `help:"HTTP server port." env:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `help:"Grace period for in-flight requests and jobs." env:"SHUTDOWN_TIMEOUT" default:"30s"`
	QueueSize       int           `help:"Capacity of the background job queue." env:"JOB_QUEUE_SIZE" default:"100"`
}

// Config is everything a binary may need.
type Config struct {
	Database Database `embed:"" prefix:"db-"`
	Log      Log      `embed:"" prefix:"log-"`
	Cloud    Cloud    `embed:"" prefix:"gcp-"`
	Ledger   Ledger   `embed:"" prefix:"ledger-"`
	Server   Server   `embed:"" prefix:"http-"`
}

// Validate checks values kong cannot check on its own.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.Retries < 0 {
		return fmt.Errorf("database retries must not be negative, got %d", c.Database.Retries)
	}
	if c.Ledger.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.Ledger.SweepInterval)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Server.Port)
	}
	if _, err := c.Ledger.Location(); err != nil {
		return err
	}
	return nil
}
