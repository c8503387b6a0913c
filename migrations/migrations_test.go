package migrations

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, 1, "init_schema_migrations"},
		{"0012_fixed_income_terms.sql", true, 12, "fixed_income_terms"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := ParseFilename(tt.filename)
			if ok != tt.valid {
				t.Fatalf("Expected valid=%v, got %v", tt.valid, ok)
			}
			if version != tt.version || name != tt.name {
				t.Errorf("Expected (%d, %q), got (%d, %q)", tt.version, tt.name, version, name)
			}
		})
	}
}

func TestRead(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_second.sql": {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.b` (id INT64);")},
		"m/0001_first.sql":  {Data: []byte("CREATE TABLE a (id INT64);")},
		"m/README.md":       {Data: []byte("ignored")},
	}

	got, err := Read(fsys, "m", map[string]string{"PROJECT_ID": "p", "DATASET_ID": "d"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(got))
	}
	if got[0].Version != 1 || got[1].Version != 2 {
		t.Errorf("Expected sorted versions, got %d, %d", got[0].Version, got[1].Version)
	}
	if !strings.Contains(got[1].SQL, "`p.d.b`") {
		t.Errorf("Expected placeholders replaced, got %s", got[1].SQL)
	}
	if got[1].Checksum != Checksum(fsys["m/0002_second.sql"].Data) {
		t.Error("Expected checksum of raw content")
	}
}

func TestRead_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0001_a.sql": {Data: []byte("SELECT 1;")},
		"m/0001_b.sql": {Data: []byte("SELECT 2;")},
	}
	if _, err := Read(fsys, "m", nil); err == nil {
		t.Error("Expected error for duplicate version")
	}
}

func TestChecksumConsistency(t *testing.T) {
	a := Checksum([]byte("CREATE TABLE test (id INT64);"))
	b := Checksum([]byte("CREATE TABLE test (id INT64);"))
	c := Checksum([]byte("CREATE TABLE different (id INT64);"))
	if a != b {
		t.Error("Same content should produce the same checksum")
	}
	if a == c {
		t.Error("Different content should produce different checksums")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	for name, dir := range map[string]string{"sqlite": "sqlite", "bigquery": "bigquery"} {
		fsys := SQLite
		if name == "bigquery" {
			fsys = BigQuery
		}
		got, err := Read(fsys, dir, nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) == 0 {
			t.Errorf("%s: expected embedded migrations", name)
		}
	}
}
