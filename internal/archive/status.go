package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// #region status

// GetStatus returns a named status flag, or "" if it was never set.
func (s *Store) GetStatus(ctx context.Context, key string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_status WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get status %s: %w", key, err)
	}
	return v.String, nil
}

// SetStatus creates or replaces a named status flag.
func (s *Store) SetStatus(ctx context.Context, key, value string) error {
	return setStatus(ctx, s.db, key, value, formatTime(time.Now()))
}

// AllStatus returns every stored flag.
func (s *Store) AllStatus(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, COALESCE(value, '') FROM system_status ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("all status: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func setStatus(ctx context.Context, db execer, key, value, now string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO system_status (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("set status %s: %w", key, err)
	}
	return nil
}

// #endregion status
