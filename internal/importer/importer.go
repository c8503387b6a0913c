// Package importer records the lines of a bank or credit card statement as
// ledger transactions. The statement is read from Cloud Storage and parsed by
// a Gemini model.
package importer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-engine/internal/archive"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// Fetcher reads a statement file by URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Ledger is the subset of *ledger.Ledger the importer writes through.
type Ledger interface {
	GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
	ListByAccount(ctx context.Context, userID, accountID string, opts ledger.ListOptions) ([]domain.Transaction, error)
	EnsureCategory(ctx context.Context, userID, name string) (string, error)
	Create(ctx context.Context, userID string, in domain.NewTransaction) (*domain.Transaction, error)
}

// Request names the statement to import and the account it belongs to.
type Request struct {
	UserID     string
	AccountID  string
	URI        string
	MIMEType   string
	Categories []string
}

// LineFailure records a statement line that could not be recorded.
type LineFailure struct {
	Index       int
	Description string
	Err         error
}

// Result summarizes an import.
type Result struct {
	URI        string
	Lines      int
	Created    []string
	Duplicates int
	Failures   []LineFailure
}

// Importer wires the fetcher, the parser and the ledger together.
type Importer struct {
	fetcher Fetcher
	parser  Parser
	ledger  Ledger
}

// New creates an Importer.
func New(fetcher Fetcher, parser Parser, l Ledger) *Importer {
	return &Importer{fetcher: fetcher, parser: parser, ledger: l}
}

// Import parses the statement and records every line through the ledger,
// one transaction per line so each balance update stays atomic. Lines that
// fail are collected in the result and the rest continue. Lines matching an
// ACTIVE transaction already in the account are skipped so a statement can
// be imported again safely.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"user_id":    req.UserID,
		"account_id": req.AccountID,
		"gcs_uri":    req.URI,
		"file":       archive.FilenameFromURI(req.URI),
	})
	ctx = logger.WithContext(ctx, log)

	account, err := im.ledger.GetAccount(ctx, req.UserID, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}
	if !account.Kind.StoresBalance() {
		return nil, fmt.Errorf("Import: %w", domain.Invalid("account_id", "statements cannot be imported into %s accounts", account.Kind))
	}

	data, err := im.fetcher.Fetch(ctx, req.URI)
	if err != nil {
		return nil, fmt.Errorf("Import: fetching statement: %w", err)
	}

	raw, err := im.parser.ParseStatement(ctx, Document{
		Data:       data,
		MIMEType:   mimeTypeOf(req),
		Categories: req.Categories,
		Currency:   account.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("Import: parsing statement: %w", err)
	}
	lines, err := transformModelOutput(raw)
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}

	res := &Result{URI: req.URI, Lines: len(lines)}
	if len(lines) == 0 {
		log.Warn().Msg("Statement has no transactions")
		return res, nil
	}

	existing, err := im.existingKeys(ctx, req, lines)
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}

	categories := map[string]string{}
	for i, line := range lines {
		fail := func(err error) {
			res.Failures = append(res.Failures, LineFailure{Index: i, Description: line.Description, Err: err})
			log.Warn().Err(err).Int("line", i).Str("description", line.Description).Msg("Statement line not recorded")
		}

		if line.Currency != "" && line.Currency != account.Currency {
			fail(domain.Invalid("currency", "line is in %s, account is in %s", line.Currency, account.Currency))
			continue
		}

		in := line.NewTransaction(account.ID, nil)
		key := dedupeKey(in.Date, in.Kind, in.Amount.StringFixed(2), in.Description)
		if existing[key] > 0 {
			existing[key]--
			res.Duplicates++
			continue
		}

		if line.Category != "" {
			id, ok := categories[line.Category]
			if !ok {
				if id, err = im.ledger.EnsureCategory(ctx, req.UserID, line.Category); err != nil {
					if errors.Is(err, domain.ErrStorageUnavailable) {
						return res, fmt.Errorf("Import: %w", err)
					}
					fail(err)
					continue
				}
				categories[line.Category] = id
			}
			in.CategoryIDs = []string{id}
		}

		t, err := im.ledger.Create(ctx, req.UserID, in)
		if err != nil {
			if errors.Is(err, domain.ErrStorageUnavailable) {
				return res, fmt.Errorf("Import: %w", err)
			}
			fail(err)
			continue
		}
		res.Created = append(res.Created, t.ID)
	}

	log.Info().
		Int("lines", res.Lines).
		Int("created", len(res.Created)).
		Int("duplicates", res.Duplicates).
		Int("failed", len(res.Failures)).
		Msg("Statement imported")
	return res, nil
}

// existingKeys counts the ACTIVE transactions already recorded over the
// statement's date range, keyed like the incoming lines.
func (im *Importer) existingKeys(ctx context.Context, req Request, lines []Line) (map[string]int, error) {
	from, to := lines[0].Date, lines[0].Date
	for _, l := range lines[1:] {
		if l.Date.Before(from) {
			from = l.Date
		}
		if l.Date.After(to) {
			to = l.Date
		}
	}
	to = to.AddDays(1)

	txs, err := im.ledger.ListByAccount(ctx, req.UserID, req.AccountID, ledger.ListOptions{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("listing existing transactions: %w", err)
	}
	keys := make(map[string]int, len(txs))
	for _, t := range txs {
		keys[dedupeKey(t.Date, t.Kind, t.Amount.StringFixed(2), t.Description)]++
	}
	return keys, nil
}

func dedupeKey(d civil.Date, kind domain.TransactionKind, amount, desc string) string {
	return d.String() + "|" + string(kind) + "|" + amount + "|" + strings.ToUpper(desc)
}

func mimeTypeOf(req Request) string {
	if req.MIMEType != "" {
		return req.MIMEType
	}
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(req.URI))); t != "" {
		return strings.SplitN(t, ";", 2)[0]
	}
	return "application/pdf"
}
