package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
	"github.com/danielpatrickdp/adaptive-policy/internal/evolution"
	"github.com/danielpatrickdp/adaptive-policy/internal/logging"
	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/safety"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// ErrNoInteractions is returned by RunIterationCycle when the iteration has
// nothing to evaluate.
var ErrNoInteractions = errors.New("no interactions for iteration")

// #region collaborators

// Store is the persistence the coordinator drives.
type Store interface {
	UnassignedIDs(ctx context.Context) ([]string, error)
	LoadByIDs(ctx context.Context, ids []string) ([]metrics.Interaction, error)
	LoadByIteration(ctx context.Context, iterationID int64) ([]metrics.Interaction, error)
	LoadByTimeWindow(ctx context.Context, start, end time.Time) ([]metrics.Interaction, error)
	Assign(ctx context.Context, iterationID int64, ids []string) error

	CreateIteration(ctx context.Context, start time.Time, policyVersion int) (int64, error)
	CompleteIteration(ctx context.Context, id int64, c archive.Completion) error
	CommitIteration(ctx context.Context, id int64, c archive.Completion, next *policy.Version) error
	LatestCompletedIteration(ctx context.Context, before int64) (archive.Iteration, bool, error)

	LatestPolicyVersion(ctx context.Context) (policy.Version, error)

	LogDecision(ctx context.Context, entry logging.Entry) error
}

// Safety is the subset of the safety controller the coordinator consults.
type Safety interface {
	IsFrozen(ctx context.Context) (bool, error)
	IsKilled(ctx context.Context) (bool, error)
	ShouldKill(ctx context.Context, s state.SystemState, m metrics.IterationMetrics) (bool, safety.KillReason, error)
	Kill(ctx context.Context, reason string) error
}

// #endregion collaborators

// #region config

// Config carries the engine parameters.
type Config struct {
	WindowSize int
	Thresholds state.Thresholds
	Rules      evolution.Rules
}

// #endregion config

// #region results

// CycleResult is what one iteration cycle produced. NewPolicyVersion is nil
// when evolution was skipped.
type CycleResult struct {
	IterationID      int64
	InteractionCount int
	State            state.SystemState
	Metrics          metrics.IterationMetrics
	Actions          []policy.EvolutionAction
	NewPolicyVersion *int
	Frozen           bool
}

// Outcome summarizes a RunOnce call for the scheduler.
type Outcome struct {
	IterationID int64
	TraceID     string
	Result      *CycleResult

	Empty      bool              // nothing to process, no iteration created
	Failed     bool              // cycle failed and was recorded as dead
	Killed     bool              // system is killed; stop triggering
	KillReason safety.KillReason // set when this cycle tripped the kill
	Err        error             // the swallowed cycle error, if Failed
}

// #endregion results
