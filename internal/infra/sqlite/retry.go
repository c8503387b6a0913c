package sqlite

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// isTransient reports whether err is worth retrying: a broken pooled
// connection or a lock held by another writer.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

// retry runs op, retrying transient failures RetryAttempts times with linear
// backoff. Exhausted retries surface as domain.ErrStorageUnavailable.
func (s *Store) retry(ctx context.Context, op func() error) error {
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * s.cfg.RetryBackoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}

		lastErr = err
		log.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", s.cfg.RetryAttempts+1).
			Msg("Transient storage error")
		if errors.Is(err, driver.ErrBadConn) {
			s.reinit(ctx)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, lastErr)
}
