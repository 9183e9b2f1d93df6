package logging

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	_ "modernc.org/sqlite"
)

// #region helpers

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE audit_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		version      INTEGER,
		trigger_type TEXT NOT NULL,
		decision     TEXT NOT NULL,
		reason       TEXT,
		details_json TEXT,
		created_at   TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-decision-tests

func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := Entry{
		Version:     3,
		Trigger:     TriggerAdmin,
		Decision:    DecisionRollback,
		Reason:      "rollback_to_v1",
		DetailsJSON: `{"from":2,"to":1}`,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var version int
	var decision string
	db.QueryRow("SELECT version, decision FROM audit_log").Scan(&version, &decision)
	if version != 3 {
		t.Errorf("expected version 3, got %d", version)
	}
	if decision != DecisionRollback {
		t.Errorf("expected decision 'rollback', got %q", decision)
	}
}

func TestLogDecision_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	if err := LogDecision(db, Entry{Trigger: TriggerAdmin, Decision: DecisionFreeze}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM audit_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogDecision(db, Entry{Trigger: TriggerAdmin, Decision: DecisionKill}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var version, reason, details sql.NullString
	db.QueryRow("SELECT version, reason, details_json FROM audit_log").Scan(&version, &reason, &details)
	if version.Valid {
		t.Errorf("expected NULL version, got %q", version.String)
	}
	if reason.Valid {
		t.Errorf("expected NULL reason, got %q", reason.String)
	}
	if details.Valid {
		t.Errorf("expected NULL details_json, got %q", details.String)
	}
}

func TestLogDecision_ClosedDB(t *testing.T) {
	db := setupDB(t)
	db.Close()

	if err := LogDecision(db, Entry{Trigger: TriggerAdmin, Decision: DecisionFreeze}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region log-cycle-tests

func TestLogCycle_SerializesRecord(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	rec := CycleRecord{
		IterationID:      7,
		TraceID:          "trace-1",
		InteractionCount: 12,
		State:            "stable",
		Metrics:          metrics.IterationMetrics{TotalResponses: 12, ResonanceRatio: 0.5, ResponseLengthDrift: 1},
	}
	if err := LogCycle(db, 4, DecisionEvolve, "", rec); err != nil {
		t.Fatalf("LogCycle: %v", err)
	}

	entries, err := ListDecisions(db, 10)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Trigger != TriggerCycle || entries[0].Version != 4 {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}

	var got CycleRecord
	if err := json.Unmarshal([]byte(entries[0].DetailsJSON), &got); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if got.IterationID != 7 || got.Metrics.ResonanceRatio != 0.5 {
		t.Fatalf("details mismatch: %+v", got)
	}
	if got.Actions == nil {
		t.Error("expected empty actions array, got null")
	}
}

func TestListDecisions_NewestFirst(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	for _, d := range []string{DecisionFreeze, DecisionUnfreeze, DecisionKill} {
		if err := LogDecision(db, Entry{Trigger: TriggerAdmin, Decision: d}); err != nil {
			t.Fatalf("LogDecision: %v", err)
		}
	}

	entries, err := ListDecisions(db, 2)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Decision != DecisionKill || entries[1].Decision != DecisionUnfreeze {
		t.Errorf("unexpected order: %s, %s", entries[0].Decision, entries[1].Decision)
	}
}

// #endregion log-cycle-tests

// #region null-if-empty-tests

func TestNullIfEmpty_Empty(t *testing.T) {
	if result := nullIfEmpty(""); result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	if result := nullIfEmpty("hello"); result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

func TestNullIfZero(t *testing.T) {
	if nullIfZero(0) != nil {
		t.Error("expected nil for zero")
	}
	if nullIfZero(5) != 5 {
		t.Error("expected 5")
	}
}

// #endregion null-if-empty-tests
