package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Record types in a snapshot file.
const (
	RecordAccount     = "account"
	RecordTransaction = "transaction"
	RecordEvent       = "investment_event"
)

// Snapshot is the set of entities changed by one export run.
type Snapshot struct {
	Accounts     []domain.Account
	Transactions []domain.Transaction
	Events       []domain.InvestmentEvent
}

// Len is the number of records the snapshot encodes.
func (s Snapshot) Len() int {
	return len(s.Accounts) + len(s.Transactions) + len(s.Events)
}

type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Encode writes one JSON object per line, accounts first, and returns the
// number of records written.
func (s Snapshot) Encode(w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	n := 0
	put := func(typ string, v any) error {
		if err := enc.Encode(record{Type: typ, Data: v}); err != nil {
			return fmt.Errorf("encoding %s record %d: %w", typ, n, err)
		}
		n++
		return nil
	}

	for i := range s.Accounts {
		if err := put(RecordAccount, &s.Accounts[i]); err != nil {
			return n, err
		}
	}
	for i := range s.Transactions {
		if err := put(RecordTransaction, &s.Transactions[i]); err != nil {
			return n, err
		}
	}
	for i := range s.Events {
		if err := put(RecordEvent, &s.Events[i]); err != nil {
			return n, err
		}
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("flushing snapshot: %w", err)
	}
	return n, nil
}

// DecodeSnapshot reads a file produced by Encode. Unknown record types are
// rejected.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(r)
	for line := 1; dec.More(); line++ {
		var raw struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := dec.Decode(&raw); err != nil {
			return s, fmt.Errorf("DecodeSnapshot: line %d: %w", line, err)
		}

		var err error
		switch raw.Type {
		case RecordAccount:
			var a domain.Account
			err = json.Unmarshal(raw.Data, &a)
			s.Accounts = append(s.Accounts, a)
		case RecordTransaction:
			var t domain.Transaction
			err = json.Unmarshal(raw.Data, &t)
			s.Transactions = append(s.Transactions, t)
		case RecordEvent:
			var e domain.InvestmentEvent
			err = json.Unmarshal(raw.Data, &e)
			s.Events = append(s.Events, e)
		default:
			err = fmt.Errorf("unknown record type %q", raw.Type)
		}
		if err != nil {
			return s, fmt.Errorf("DecodeSnapshot: line %d: %w", line, err)
		}
	}
	return s, nil
}
