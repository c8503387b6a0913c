package ledger

import (
	"context"
	"fmt"
	"strings"
)

// EnsureCategory returns the id of the user's category called name, creating
// it when missing.
func (l *Ledger) EnsureCategory(ctx context.Context, userID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultCategory
	}
	var id string
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		id, err = tx.EnsureCategory(ctx, userID, name)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("EnsureCategory: %w", err)
	}
	return id, nil
}
