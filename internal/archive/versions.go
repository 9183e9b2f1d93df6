package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

const versionColumns = `version, prompt_text, policy_json, actions_json, created_at`

// #region save

// SavePolicyVersion inserts a new immutable version. Saving an existing
// version number fails.
func (s *Store) SavePolicyVersion(ctx context.Context, v policy.Version) error {
	return insertVersion(ctx, s.db, v)
}

// SeedIfEmpty stores p as version 1 when no version exists yet. It reports
// whether a seed was written.
func (s *Store) SeedIfEmpty(ctx context.Context, p policy.PromptPolicy) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM policy_versions`).Scan(&n); err != nil {
		return false, fmt.Errorf("count versions: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	seed := policy.Version{
		Version:    1,
		Policy:     p,
		PromptText: policy.Render(p),
		Actions:    []string{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := insertVersion(ctx, tx, seed); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit seed: %w", err)
	}
	return true, nil
}

// CommitRollback stores a rollback version together with its status flags
// in one transaction, so a failure leaves neither behind.
func (s *Store) CommitRollback(ctx context.Context, v policy.Version, flags map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertVersion(ctx, tx, v); err != nil {
		return err
	}
	now := formatTime(time.Now())
	for k, val := range flags {
		if err := setStatus(ctx, tx, k, val, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// #endregion save

// #region load

// LoadPolicyVersion loads one version, serving repeats from the cache.
func (s *Store) LoadPolicyVersion(ctx context.Context, version int) (policy.Version, error) {
	if v, ok := s.versions.Get(version); ok {
		return v, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM policy_versions WHERE version = ?`, version)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Version{}, fmt.Errorf("policy version %d: %w", version, ErrNotFound)
	}
	if err != nil {
		return policy.Version{}, err
	}
	s.versions.Add(version, v)
	return v, nil
}

// LatestPolicyVersion returns the highest-numbered version.
func (s *Store) LatestPolicyVersion(ctx context.Context) (policy.Version, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM policy_versions`).Scan(&n); err != nil {
		return policy.Version{}, fmt.Errorf("latest version: %w", err)
	}
	if !n.Valid {
		return policy.Version{}, fmt.Errorf("latest policy version: %w", ErrNotFound)
	}
	return s.LoadPolicyVersion(ctx, int(n.Int64))
}

// ListPolicyVersionNumbers returns all version numbers in ascending order.
func (s *Store) ListPolicyVersionNumbers(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM policy_versions ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list version numbers: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListPolicyVersions returns up to limit versions, newest first.
func (s *Store) ListPolicyVersions(ctx context.Context, limit int) ([]policy.Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM policy_versions ORDER BY version DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []policy.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// #endregion load

// #region codec

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertVersion(ctx context.Context, db execer, v policy.Version) error {
	policyJSON, err := policy.Encode(v.Policy)
	if err != nil {
		return err
	}
	actions := v.Actions
	if actions == nil {
		actions = []string{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	created := v.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO policy_versions (version, prompt_text, policy_json, actions_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.Version, v.PromptText, policyJSON, string(actionsJSON), formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("insert policy version %d: %w", v.Version, err)
	}
	return nil
}

func scanVersion(r rowScanner) (policy.Version, error) {
	var v policy.Version
	var policyJSON, actionsJSON, created string
	if err := r.Scan(&v.Version, &v.PromptText, &policyJSON, &actionsJSON, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policy.Version{}, err
		}
		return policy.Version{}, fmt.Errorf("scan policy version: %w", err)
	}
	p, err := policy.Decode(policyJSON)
	if err != nil {
		return policy.Version{}, fmt.Errorf("policy version %d: %w", v.Version, err)
	}
	v.Policy = p
	if err := json.Unmarshal([]byte(actionsJSON), &v.Actions); err != nil {
		return policy.Version{}, fmt.Errorf("policy version %d actions: %w", v.Version, err)
	}
	if v.Actions == nil {
		v.Actions = []string{}
	}
	v.CreatedAt = parseTime(created)
	return v, nil
}

// #endregion codec
