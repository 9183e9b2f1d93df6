package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-decision

// LogDecision writes an entry to the audit_log table.
func LogDecision(db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO audit_log (version, trigger_type, decision, reason, details_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullIfZero(entry.Version),
		entry.Trigger,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.DetailsJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// LogCycle records a cycle decision with its CycleRecord as details.
func LogCycle(db *sql.DB, version int, decision, reason string, rec CycleRecord) error {
	details, err := MarshalCycleRecord(rec)
	if err != nil {
		return err
	}
	return LogDecision(db, Entry{
		Version:     version,
		Trigger:     TriggerCycle,
		Decision:    decision,
		Reason:      reason,
		DetailsJSON: details,
	})
}

// MarshalCycleRecord encodes rec for details_json. Nil actions encode as [].
func MarshalCycleRecord(rec CycleRecord) (string, error) {
	if rec.Actions == nil {
		rec.Actions = []string{}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal cycle record: %w", err)
	}
	return string(b), nil
}

// #endregion log-decision

// #region list-decisions

// ListDecisions returns the most recent audit entries, newest first.
func ListDecisions(db *sql.DB, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT COALESCE(version, 0), trigger_type, decision, COALESCE(reason, ''), COALESCE(details_json, ''), created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.Version, &e.Trigger, &e.Decision, &e.Reason, &e.DetailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-decisions

// #region helpers

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(v int) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

// #endregion helpers
