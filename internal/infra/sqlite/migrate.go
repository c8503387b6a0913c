package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/migrations"
)

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Migrate applies every pending embedded migration and refreshes the store's
// capabilities. It returns the number of migrations applied.
func (s *Store) Migrate(ctx context.Context, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)
	db := s.DB()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			name        TEXT NOT NULL,
			applied_at  TEXT NOT NULL,
			checksum    TEXT,
			applied_by  TEXT
		)`); err != nil {
		return 0, fmt.Errorf("Migrate: ensure schema_migrations: %w", err)
	}

	all, err := migrations.Read(migrations.SQLite, "sqlite", nil)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}
	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}
	done := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		done[am.Version] = am
	}

	count := 0
	for _, m := range all {
		if am, ok := done[m.Version]; ok {
			if am.Checksum != "" && am.Checksum != m.Checksum {
				log.Warn().
					Int("version", m.Version).
					Str("name", m.Name).
					Msg("Applied migration changed since it was recorded")
			}
			continue
		}

		err := s.withTx(ctx, func(tx *Tx) error {
			if _, err := tx.tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("executing: %w", err)
			}
			_, err := tx.tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at, checksum, applied_by) VALUES (?, ?, ?, ?, ?)`,
				m.Version, m.Name, formatTime(time.Now()), m.Checksum, appliedBy)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("Migrate: %04d_%s: %w", m.Version, m.Name, err)
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Migration applied")
		count++
	}

	caps, err := ProbeCapabilities(ctx, db)
	if err != nil {
		return count, fmt.Errorf("Migrate: %w", err)
	}
	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()
	return count, nil
}

// AppliedMigrations lists the rows of schema_migrations in version order.
func (s *Store) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := s.DB().QueryContext(ctx,
		`SELECT version, name, applied_at, checksum, applied_by FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var (
			am        AppliedMigration
			appliedAt string
			checksum  sql.NullString
			by        sql.NullString
		)
		if err := rows.Scan(&am.Version, &am.Name, &appliedAt, &checksum, &by); err != nil {
			return nil, fmt.Errorf("AppliedMigrations: scanning: %w", err)
		}
		am.AppliedAt, _ = parseTime(appliedAt)
		am.Checksum = checksum.String
		am.AppliedBy = by.String
		out = append(out, am)
	}
	return out, rows.Err()
}
