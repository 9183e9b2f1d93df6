package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-policy/internal/logging"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id            TEXT PRIMARY KEY,
	iteration_id  INTEGER,
	timestamp     TEXT NOT NULL,
	user_input    TEXT NOT NULL,
	response_text TEXT NOT NULL,
	feedback      TEXT NOT NULL DEFAULT '',
	refusal       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_interactions_iteration ON interactions(iteration_id);
CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions(timestamp);

CREATE TABLE IF NOT EXISTS iterations (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	start_time         TEXT NOT NULL,
	end_time           TEXT,
	total_interactions INTEGER NOT NULL DEFAULT 0,
	state              TEXT NOT NULL,
	metrics_json       TEXT NOT NULL DEFAULT '{}',
	policy_version     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metrics_snapshots (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	iteration_id            INTEGER NOT NULL,
	timestamp               TEXT NOT NULL,
	total_responses         INTEGER NOT NULL,
	resonance_ratio         REAL NOT NULL,
	rejection_density       REAL NOT NULL,
	response_length_drift   REAL NOT NULL,
	refusal_frequency       REAL NOT NULL,
	semantic_collapse_index REAL NOT NULL,
	average_response_length REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_iteration ON metrics_snapshots(iteration_id);

CREATE TABLE IF NOT EXISTS policy_versions (
	version      INTEGER PRIMARY KEY,
	prompt_text  TEXT NOT NULL,
	policy_json  TEXT NOT NULL,
	actions_json TEXT NOT NULL DEFAULT '[]',
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS system_status (
	key        TEXT PRIMARY KEY,
	value      TEXT,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	version      INTEGER,
	trigger_type TEXT NOT NULL,
	decision     TEXT NOT NULL,
	reason       TEXT,
	details_json TEXT,
	created_at   TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct

// Store persists interactions, iterations, policy versions and status
// flags in SQLite. Policy versions are immutable, so loads are cached.
type Store struct {
	db       *sql.DB
	versions *lru.Cache[int, policy.Version]

	idMu    sync.Mutex
	entropy *rand.Rand
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewStoreWithDB(db), nil
}

// NewStoreWithDB wraps an already-migrated database.
func NewStoreWithDB(db *sql.DB) *Store {
	cache, _ := lru.New[int, policy.Version](256)
	return &Store{
		db:       db,
		versions: cache,
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Migrate creates all tables on db. Used by tests and tools that open
// their own connection.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region audit

// LogDecision writes an audit entry.
func (s *Store) LogDecision(_ context.Context, entry logging.Entry) error {
	return logging.LogDecision(s.db, entry)
}

// #endregion audit

// #region helpers

func (s *Store) newID(t time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
