package archive

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
)

const interactionColumns = `id, iteration_id, timestamp, user_input, response_text, feedback, refusal`

// maxInParams bounds the number of placeholders per IN (...) query.
const maxInParams = 500

// #region record

// RecordInteraction stores a new, unassigned interaction and returns its ID.
func (s *Store) RecordInteraction(ctx context.Context, in NewInteraction) (string, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	id := s.newID(ts)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, iteration_id, timestamp, user_input, response_text, feedback, refusal)
		 VALUES (?, NULL, ?, ?, ?, ?, ?)`,
		id, formatTime(ts), in.UserInput, in.ResponseText, in.Feedback, boolToInt(in.Refusal),
	)
	if err != nil {
		return "", fmt.Errorf("record interaction: %w", err)
	}
	return id, nil
}

// UpdateFeedback sets or replaces the feedback tag of an interaction.
func (s *Store) UpdateFeedback(ctx context.Context, id, feedback string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE interactions SET feedback = ? WHERE id = ?`, feedback, id)
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("interaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// #endregion record

// #region load

// LoadByIteration returns the interactions attributed to an iteration in
// timestamp order.
func (s *Store) LoadByIteration(ctx context.Context, iterationID int64) ([]metrics.Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions WHERE iteration_id = ? ORDER BY timestamp, id`,
		iterationID,
	)
	if err != nil {
		return nil, fmt.Errorf("load by iteration: %w", err)
	}
	return scanInteractions(rows)
}

// LoadByTimeWindow returns interactions with start <= timestamp < end.
func (s *Store) LoadByTimeWindow(ctx context.Context, start, end time.Time) ([]metrics.Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions
		 WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp, id`,
		formatTime(start), formatTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("load by time window: %w", err)
	}
	return scanInteractions(rows)
}

// LoadByIDs returns the given interactions in timestamp order. Unknown IDs
// are skipped.
func (s *Store) LoadByIDs(ctx context.Context, ids []string) ([]metrics.Interaction, error) {
	var out []metrics.Interaction
	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+interactionColumns+` FROM interactions WHERE id IN (`+placeholders(len(chunk))+`)`,
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("load by ids: %w", err)
		}
		part, err := scanInteractions(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	sortInteractions(out)
	return out, nil
}

// #endregion load

// #region unassigned

// UnassignedIDs returns the IDs of interactions not yet attributed to any
// iteration, oldest first.
func (s *Store) UnassignedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM interactions WHERE iteration_id IS NULL ORDER BY timestamp, id`)
	if err != nil {
		return nil, fmt.Errorf("unassigned ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountUnassigned returns the number of interactions waiting for a cycle.
func (s *Store) CountUnassigned(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions WHERE iteration_id IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unassigned: %w", err)
	}
	return n, nil
}

// Assign attributes the given interactions to an iteration atomically.
// Interactions already attributed elsewhere are left alone.
func (s *Store) Assign(ctx context.Context, iterationID int64, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE interactions SET iteration_id = ? WHERE id = ? AND iteration_id IS NULL`)
	if err != nil {
		return fmt.Errorf("prepare assign: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, iterationID, id); err != nil {
			return fmt.Errorf("assign %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// InteractionCount returns how many interactions were recorded since t.
func (s *Store) InteractionCount(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interactions WHERE timestamp >= ?`, formatTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("interaction count: %w", err)
	}
	return n, nil
}

// #endregion unassigned

// #region scan

func scanInteractions(rows *sql.Rows) ([]metrics.Interaction, error) {
	defer rows.Close()

	var out []metrics.Interaction
	for rows.Next() {
		var it metrics.Interaction
		var iterationID sql.NullInt64
		var ts, feedback string
		var refusal int
		if err := rows.Scan(&it.ID, &iterationID, &ts, &it.UserInput, &it.ResponseText, &feedback, &refusal); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		if iterationID.Valid {
			it.IterationID = iterationID.Int64
		}
		it.Timestamp = parseTime(ts)
		it.Feedback = metrics.ParseFeedback(feedback)
		it.Refusal = refusal != 0
		out = append(out, it)
	}
	return out, rows.Err()
}

func sortInteractions(items []metrics.Interaction) {
	sort.Slice(items, func(i, j int) bool { return lessInteraction(items[i], items[j]) })
}

func lessInteraction(a, b metrics.Interaction) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// #endregion scan
