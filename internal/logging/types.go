package logging

import (
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
)

// #region audit-entry

// Entry is a single row in the audit_log table.
type Entry struct {
	Version     int    // policy version in effect or produced, 0 if none
	Trigger     string // "cycle" | "admin" | "auto"
	Decision    string // "evolve" | "frozen_skip" | "failed" | "auto_kill" | "freeze" | "unfreeze" | "rollback" | "kill"
	Reason      string
	DetailsJSON string
	CreatedAt   time.Time
}

// Decision values written by the engine.
const (
	DecisionEvolve     = "evolve"
	DecisionFrozenSkip = "frozen_skip"
	DecisionFailed     = "failed"
	DecisionAutoKill   = "auto_kill"
	DecisionFreeze     = "freeze"
	DecisionUnfreeze   = "unfreeze"
	DecisionRollback   = "rollback"
	DecisionKill       = "kill"
)

// Trigger values.
const (
	TriggerCycle = "cycle"
	TriggerAdmin = "admin"
	TriggerAuto  = "auto"
)

// #endregion audit-entry

// #region cycle-record

// CycleRecord captures the inputs and outputs of one iteration cycle.
// Serialized as JSON into audit_log.details_json so a cycle can be replayed.
type CycleRecord struct {
	IterationID      int64                    `json:"iteration_id"`
	TraceID          string                   `json:"trace_id"`
	InteractionCount int                      `json:"interaction_count"`
	State            string                   `json:"state"`
	Metrics          metrics.IterationMetrics `json:"metrics"`
	Actions          []string                 `json:"actions"`
	Frozen           bool                     `json:"frozen"`
	Error            string                   `json:"error,omitempty"`
}

// #endregion cycle-record
