package safety

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/adaptive-policy/internal/logging"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// #region errors

var (
	ErrNoVersions          = errors.New("no policy versions available for rollback")
	ErrInsufficientHistory = errors.New("no previous version to roll back to")
	ErrVersionNotFound     = errors.New("target version does not exist")
	ErrInvalidTarget       = errors.New("target version is not older than the current version")
)

// #endregion errors

// #region status-keys

// Named status flags owned by the safety controller.
const (
	KeyFrozen       = "frozen"
	KeyFrozenAt     = "frozen_at"
	KeyKilled       = "killed"
	KeyKilledAt     = "killed_at"
	KeyLastRollback = "last_rollback"
	KeyRollbackFrom = "rollback_from"
	KeyRollbackTo   = "rollback_to"
)

// RecentStateWindow is how many recent iterations the consecutive-state
// kill rules look at.
const RecentStateWindow = 5

// #endregion status-keys

// #region thresholds

// Thresholds configures the automatic kill trip-wire.
type Thresholds struct {
	KillConsecutiveCollapsing int     `yaml:"kill_consecutive_collapsing" json:"kill_consecutive_collapsing"`
	KillConsecutiveMute       int     `yaml:"kill_consecutive_mute" json:"kill_consecutive_mute"`
	KillMinRR                 float64 `yaml:"kill_min_rr" json:"kill_min_rr"`
	KillMaxRD                 float64 `yaml:"kill_max_rd" json:"kill_max_rd"`
	KillMaxSCI                float64 `yaml:"kill_max_sci" json:"kill_max_sci"`
}

// ThresholdKeys lists the configuration keys of Thresholds in file order.
var ThresholdKeys = []string{
	"kill_consecutive_collapsing", "kill_consecutive_mute", "kill_min_rr", "kill_max_rd", "kill_max_sci",
}

// #endregion thresholds

// #region kill-reason

// KillReason names the condition that tripped ShouldKill.
type KillReason string

const (
	ReasonNone                  KillReason = ""
	ReasonLowResonance          KillReason = "resonance_below_min"
	ReasonHighRejection         KillReason = "rejection_above_max"
	ReasonSemanticCollapse      KillReason = "collapse_above_max"
	ReasonDeadState             KillReason = "state_dead"
	ReasonConsecutiveCollapsing KillReason = "consecutive_collapsing"
	ReasonConsecutiveMute       KillReason = "consecutive_mute"
)

// #endregion kill-reason

// #region collaborators

// StatusStore reads and writes named status flags. GetStatus returns ""
// for a flag that was never set.
type StatusStore interface {
	GetStatus(ctx context.Context, key string) (string, error)
	SetStatus(ctx context.Context, key, value string) error
}

// VersionStore exposes the immutable policy version history.
// CommitRollback must persist the new version and the flags atomically.
type VersionStore interface {
	ListPolicyVersionNumbers(ctx context.Context) ([]int, error)
	LoadPolicyVersion(ctx context.Context, version int) (policy.Version, error)
	CommitRollback(ctx context.Context, v policy.Version, flags map[string]string) error
}

// StateHistory returns the states of the n most recent iterations,
// oldest first.
type StateHistory interface {
	RecentStates(ctx context.Context, n int) ([]state.SystemState, error)
}

// DecisionLog records admin decisions to the audit trail.
type DecisionLog interface {
	LogDecision(ctx context.Context, entry logging.Entry) error
}

// Store is everything the controller needs from persistence.
type Store interface {
	StatusStore
	VersionStore
	StateHistory
	DecisionLog
}

// #endregion collaborators

// #region status

// Status is a snapshot of all safety flags.
type Status struct {
	Frozen       bool   `json:"frozen"`
	Killed       bool   `json:"killed"`
	FrozenAt     string `json:"frozen_at,omitempty"`
	KilledAt     string `json:"killed_at,omitempty"`
	LastRollback string `json:"last_rollback,omitempty"`
	RollbackFrom string `json:"rollback_from,omitempty"`
	RollbackTo   string `json:"rollback_to,omitempty"`
}

// #endregion status
