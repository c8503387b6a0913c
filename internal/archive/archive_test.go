package archive

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{"gs://bucket/path/to/file.pdf", "bucket", "path/to/file.pdf", false},
		{"gs://bucket/file.pdf", "bucket", "file.pdf", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"s3://bucket/file.pdf", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.bucket || object != tt.object {
				t.Errorf("ParseURI(%q) = %q, %q", tt.uri, bucket, object)
			}
		})
	}
}

func TestFilenameFromURI(t *testing.T) {
	tests := map[string]string{
		"gs://bucket/folder/file.pdf": "file.pdf",
		"gs://bucket/file.pdf":        "file.pdf",
		"gs://bucket":                 "bucket",
	}
	for uri, want := range tests {
		if got := FilenameFromURI(uri); got != want {
			t.Errorf("FilenameFromURI(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestObjectNames(t *testing.T) {
	at := time.Date(2024, 3, 10, 14, 5, 9, 0, time.FixedZone("BRT", -3*3600))

	if got := SnapshotObjectName("run-1", at); got != "snapshots/2024/03/10/170509-run-1.jsonl" {
		t.Errorf("Unexpected snapshot name %s", got)
	}
	if got := StatementObjectName("u1", "/tmp/march.pdf", at); got != "statements/u1/20240310T170509-march.pdf" {
		t.Errorf("Unexpected statement name %s", got)
	}
	if got := URI("b", "x/y"); got != "gs://b/x/y" {
		t.Errorf("Unexpected URI %s", got)
	}
}

func TestSnapshotEncodeDecode(t *testing.T) {
	s := Snapshot{
		Accounts: []domain.Account{{ID: "a1", Kind: domain.AccountChecking, StoredBalance: decimal.RequireFromString("899.75")}},
		Transactions: []domain.Transaction{
			{ID: "t1", AccountID: "a1", Amount: decimal.RequireFromString("100.25"), Date: civil.Date{Year: 2024, Month: 3, Day: 1}, State: domain.StateActive},
			{ID: "t2", AccountID: "a1", Amount: decimal.NewFromInt(5), Date: civil.Date{Year: 2024, Month: 3, Day: 2}, State: domain.StateReversed},
		},
		Events: []domain.InvestmentEvent{{ID: "e1", AssetName: "PETR4", Quantity: decimal.NewFromInt(-3), Date: civil.Date{Year: 2024, Month: 2, Day: 1}}},
	}

	var buf bytes.Buffer
	n, err := s.Encode(&buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != 4 || s.Len() != 4 {
		t.Errorf("Expected 4 records, got %d (Len %d)", n, s.Len())
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], `{"type":"account"`) {
		t.Errorf("Expected accounts first, got %s", lines[0])
	}

	got, err := DecodeSnapshot(&buf)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(got.Accounts) != 1 || len(got.Transactions) != 2 || len(got.Events) != 1 {
		t.Fatalf("Unexpected decoded snapshot %+v", got)
	}
	if !got.Accounts[0].StoredBalance.Equal(decimal.RequireFromString("899.75")) {
		t.Errorf("Balance lost: %s", got.Accounts[0].StoredBalance)
	}
	if got.Transactions[0].Date != (civil.Date{Year: 2024, Month: 3, Day: 1}) {
		t.Errorf("Date lost: %v", got.Transactions[0].Date)
	}
	if got.Transactions[1].State != domain.StateReversed {
		t.Errorf("State lost: %s", got.Transactions[1].State)
	}
}

func TestDecodeSnapshotRejectsUnknownType(t *testing.T) {
	_, err := DecodeSnapshot(strings.NewReader(`{"type":"receipt","data":{}}` + "\n"))
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("Expected error naming line 1, got %v", err)
	}
}
