package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/asapdigest/central-command/engine/domain"
)

// GetOption unmarshals the stored JSON for key into dest.
// Returns domain.ErrNotFound when the key is absent.
func (s *Store) GetOption(ctx context.Context, key string, dest any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM options WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: option %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("store: get option %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("store: decode option %q: %w", key, err)
	}
	return nil
}

// SetOption stores val as JSON under key, replacing any previous value.
func (s *Store) SetOption(ctx context.Context, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("store: encode option %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO options (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, string(raw))
	if err != nil {
		return fmt.Errorf("store: set option %q: %w", key, err)
	}
	return nil
}
