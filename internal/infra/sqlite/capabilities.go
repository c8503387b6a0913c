package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Capabilities lists optional schema features. It is probed once and handed
// to repositories explicitly.
type Capabilities struct {
	// FixedIncomeTerms is set when investment_events carries the rate columns.
	FixedIncomeTerms bool
}

var fixedIncomeColumns = []string{"rate_type", "rate_index", "index_pct", "fixed_rate", "maturity_date"}

// ProbeCapabilities inspects the schema of db.
func ProbeCapabilities(ctx context.Context, db *sql.DB) (Capabilities, error) {
	cols, err := tableColumns(ctx, db, "investment_events")
	if err != nil {
		return Capabilities{}, fmt.Errorf("ProbeCapabilities: %w", err)
	}
	caps := Capabilities{FixedIncomeTerms: len(cols) > 0}
	for _, c := range fixedIncomeColumns {
		if !cols[c] {
			caps.FixedIncomeTerms = false
			break
		}
	}
	return caps, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table info: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
