package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

const iterationColumns = `id, start_time, end_time, total_interactions, state, metrics_json, policy_version`

// #region create

// CreateIteration opens a pending iteration record and returns its ID.
func (s *Store) CreateIteration(ctx context.Context, start time.Time, policyVersion int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO iterations (start_time, state, metrics_json, policy_version) VALUES (?, ?, '{}', ?)`,
		formatTime(start), string(state.Pending), policyVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("create iteration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create iteration: %w", err)
	}
	return id, nil
}

// #endregion create

// #region complete

// Completion is the final record of an iteration. A nil Metrics persists
// as "{}" and writes no snapshot.
type Completion struct {
	End               time.Time
	TotalInteractions int
	State             state.SystemState
	Metrics           *metrics.IterationMetrics
	PolicyVersion     int
}

// CompleteIteration finalizes an iteration and stores its metrics snapshot
// in one transaction.
func (s *Store) CompleteIteration(ctx context.Context, id int64, c Completion) error {
	return s.CommitIteration(ctx, id, c, nil)
}

// CommitIteration completes an iteration and, when next is non-nil, inserts
// the policy version it produced, all in one transaction. A failure leaves
// the iteration pending and no new version behind.
func (s *Store) CommitIteration(ctx context.Context, id int64, c Completion, next *policy.Version) error {
	metricsJSON := "{}"
	if c.Metrics != nil {
		b, err := json.Marshal(c.Metrics)
		if err != nil {
			return fmt.Errorf("marshal metrics: %w", err)
		}
		metricsJSON = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE iterations SET end_time = ?, total_interactions = ?, state = ?, metrics_json = ?, policy_version = ?
		 WHERE id = ?`,
		formatTime(c.End), c.TotalInteractions, string(c.State), metricsJSON, c.PolicyVersion, id,
	)
	if err != nil {
		return fmt.Errorf("complete iteration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("iteration %d: %w", id, ErrNotFound)
	}

	if m := c.Metrics; m != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO metrics_snapshots (iteration_id, timestamp, total_responses, resonance_ratio, rejection_density,
			 response_length_drift, refusal_frequency, semantic_collapse_index, average_response_length)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, formatTime(c.End), m.TotalResponses, m.ResonanceRatio, m.RejectionDensity,
			m.ResponseLengthDrift, m.RefusalFrequency, m.SemanticCollapseIndex, m.AverageResponseLength,
		)
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
	}

	if next != nil {
		if err := insertVersion(ctx, tx, *next); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// #endregion complete

// #region get

// GetIteration loads one iteration by ID.
func (s *Store) GetIteration(ctx context.Context, id int64) (Iteration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+iterationColumns+` FROM iterations WHERE id = ?`, id)
	it, err := scanIteration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Iteration{}, fmt.Errorf("iteration %d: %w", id, ErrNotFound)
	}
	return it, err
}

// LatestCompletedIteration returns the most recent non-pending iteration
// with an ID below before. ok is false when there is none.
func (s *Store) LatestCompletedIteration(ctx context.Context, before int64) (it Iteration, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+iterationColumns+` FROM iterations WHERE id < ? AND state != ? ORDER BY id DESC LIMIT 1`,
		before, string(state.Pending),
	)
	it, err = scanIteration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Iteration{}, false, nil
	}
	if err != nil {
		return Iteration{}, false, err
	}
	return it, true, nil
}

// RecentStates returns the states of the n most recent completed
// iterations, oldest first.
func (s *Store) RecentStates(ctx context.Context, n int) ([]state.SystemState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state FROM iterations WHERE state != ? ORDER BY id DESC LIMIT ?`,
		string(state.Pending), n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent states: %w", err)
	}
	defer rows.Close()

	var newest []state.SystemState
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		st, err := state.ParseSystemState(raw)
		if err != nil {
			continue
		}
		newest = append(newest, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]state.SystemState, len(newest))
	for i, st := range newest {
		out[len(newest)-1-i] = st
	}
	return out, nil
}

// IterationCount returns the total number of iterations, pending included.
func (s *Store) IterationCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM iterations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("iteration count: %w", err)
	}
	return n, nil
}

// ListIterations returns up to limit iterations, newest first.
func (s *Store) ListIterations(ctx context.Context, limit int) ([]Iteration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+iterationColumns+` FROM iterations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var out []Iteration
	for rows.Next() {
		it, err := scanIteration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// #endregion get

// #region scan

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIteration(r rowScanner) (Iteration, error) {
	var it Iteration
	var start, st, metricsJSON string
	var end sql.NullString
	if err := r.Scan(&it.ID, &start, &end, &it.TotalInteractions, &st, &metricsJSON, &it.PolicyVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Iteration{}, err
		}
		return Iteration{}, fmt.Errorf("scan iteration: %w", err)
	}
	it.StartTime = parseTime(start)
	if end.Valid {
		it.EndTime = parseTime(end.String)
	}
	it.State = state.SystemState(st)
	if metricsJSON != "" && metricsJSON != "{}" {
		var m metrics.IterationMetrics
		if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
			return Iteration{}, fmt.Errorf("unmarshal metrics for iteration %d: %w", it.ID, err)
		}
		it.Metrics = &m
	}
	return it, nil
}

// #endregion scan
