// Package ledger keeps account balances consistent with the transactions,
// recurring series and installment groups recorded against them.
package ledger

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/ledger-engine/internal/calendar"
)

// DefaultCategory is linked to a transaction recorded without categories.
const DefaultCategory = "Uncategorized"

// Ledger is the entry point for every balance-affecting operation.
type Ledger struct {
	store    Store
	valuer   Valuer
	now      func() time.Time
	loc      *time.Location
	newID    func() string
	sweepMax int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used to decide "today".
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the time zone in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

// WithValuer sets the collaborator that values investment accounts.
func WithValuer(v Valuer) Option {
	return func(l *Ledger) { l.valuer = v }
}

// WithIDGenerator overrides entity id generation.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

// WithSweepLimit caps the occurrences materialized for a single parent per sweep.
func WithSweepLimit(n int) Option {
	return func(l *Ledger) { l.sweepMax = n }
}

// New creates a Ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		now:      time.Now,
		loc:      time.UTC,
		newID:    uuid.NewString,
		sweepMax: 400,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) today() civil.Date {
	return calendar.Today(l.now(), l.loc)
}

// Today returns the current date in the ledger's time zone.
func (l *Ledger) Today() civil.Date { return l.today() }
