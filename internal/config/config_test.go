package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/alecthomas/kong"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	var cli struct {
		Config
	}
	parser, err := kong.New(&cli, kong.Name("test"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	if _, err := parser.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return &cli.Config
}

func TestDefaults(t *testing.T) {
	cfg := parse(t)
	if cfg.Database.Path != "data/ledger.db" || cfg.Database.Retries != 3 || cfg.Database.MaxConns != 4 {
		t.Errorf("Unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Ledger.SweepInterval != time.Hour || cfg.Server.Port != 8080 {
		t.Errorf("Unexpected defaults: %+v %+v", cfg.Ledger, cfg.Server)
	}
	if cfg.Cloud.ExportEnabled() {
		t.Error("Expected export to be disabled without a project")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("LEDGER_DB_PATH", "/tmp/other.db")
	t.Setenv("LEDGER_DB_RETRIES", "5")
	t.Setenv("LEDGER_LOG_FORMAT", "json")
	t.Setenv("GCP_PROJECT", "my-project")
	t.Setenv("SWEEP_INTERVAL", "15m")

	cfg := parse(t)
	if cfg.Database.Path != "/tmp/other.db" || cfg.Database.Retries != 5 {
		t.Errorf("Expected env to override database settings, got %+v", cfg.Database)
	}
	if cfg.Log.Format != "json" || cfg.Ledger.SweepInterval != 15*time.Minute {
		t.Errorf("Unexpected values: %+v %+v", cfg.Log, cfg.Ledger)
	}
	if !cfg.Cloud.ExportEnabled() {
		t.Error("Expected export to be enabled")
	}

	store := cfg.Database.Store()
	if store.Path != "/tmp/other.db" || store.RetryAttempts != 5 || store.MaxOpenConns != 4 {
		t.Errorf("Unexpected store config: %+v", store)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	cfg := parse(t, "--http-port=9100", "--db-path=x.db")
	if cfg.Server.Port != 9100 || cfg.Database.Path != "x.db" {
		t.Errorf("Expected flags to win, got port %d path %s", cfg.Server.Port, cfg.Database.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty path", mutate: func(c *Config) { c.Database.Path = "" }},
		{name: "negative retries", mutate: func(c *Config) { c.Database.Retries = -1 }},
		{name: "zero interval", mutate: func(c *Config) { c.Ledger.SweepInterval = 0 }},
		{name: "bad timezone", mutate: func(c *Config) { c.Ledger.Timezone = "Mars/Olympus" }},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parse(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := Log{Level: "debug", Format: "json"}.Logger(buf)
	if err != nil {
		t.Fatalf("Logger: %v", err)
	}
	log.Debug().Msg("hello")
	if !bytes.Contains(buf.Bytes(), []byte(`"message":"hello"`)) {
		t.Errorf("Expected JSON debug output, got %s", buf.String())
	}
}
