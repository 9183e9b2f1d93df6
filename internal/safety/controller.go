package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/zoobzio/capitan"

	"github.com/danielpatrickdp/adaptive-policy/internal/events"
	"github.com/danielpatrickdp/adaptive-policy/internal/logging"
	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// #region controller

// Controller implements freeze, rollback and kill on top of a shared
// status store. It holds no flag state of its own, so several processes
// pointed at the same store agree on the flags.
type Controller struct {
	store      Store
	thresholds Thresholds
	now        func() time.Time
}

// NewController creates a controller backed by store.
func NewController(store Store, thresholds Thresholds) *Controller {
	return &Controller{
		store:      store,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Thresholds returns the kill thresholds in use.
func (c *Controller) Thresholds() Thresholds { return c.thresholds }

// #endregion controller

// #region freeze

// Freeze pauses policy evolution. Metrics and states are still recorded.
func (c *Controller) Freeze(ctx context.Context) error {
	if err := c.store.SetStatus(ctx, KeyFrozen, "true"); err != nil {
		return fmt.Errorf("freeze: %w", err)
	}
	if err := c.store.SetStatus(ctx, KeyFrozenAt, c.timestamp()); err != nil {
		return fmt.Errorf("freeze: %w", err)
	}
	log.Printf("[SAFETY] system frozen, evolution paused")
	capitan.Emit(ctx, events.Frozen)
	c.audit(ctx, logging.Entry{Trigger: logging.TriggerAdmin, Decision: logging.DecisionFreeze})
	return nil
}

// Unfreeze resumes policy evolution.
func (c *Controller) Unfreeze(ctx context.Context) error {
	if err := c.store.SetStatus(ctx, KeyFrozen, "false"); err != nil {
		return fmt.Errorf("unfreeze: %w", err)
	}
	log.Printf("[SAFETY] system unfrozen, evolution resumed")
	capitan.Emit(ctx, events.Unfrozen)
	c.audit(ctx, logging.Entry{Trigger: logging.TriggerAdmin, Decision: logging.DecisionUnfreeze})
	return nil
}

// IsFrozen reports whether evolution is paused.
func (c *Controller) IsFrozen(ctx context.Context) (bool, error) {
	return c.flag(ctx, KeyFrozen)
}

// #endregion freeze

// #region rollback

// Rollback creates a new version copying target verbatim, tagged with a
// rollback marker. A nil target means the version before the current one.
// It returns the new version number. History is never rewritten.
func (c *Controller) Rollback(ctx context.Context, target *int) (int, error) {
	versions, err := c.store.ListPolicyVersionNumbers(ctx)
	if err != nil {
		return 0, fmt.Errorf("rollback: list versions: %w", err)
	}
	if len(versions) == 0 {
		return 0, ErrNoVersions
	}
	sorted := append([]int(nil), versions...)
	sort.Ints(sorted)
	current := sorted[len(sorted)-1]

	var to int
	if target == nil {
		if len(sorted) < 2 {
			return 0, ErrInsufficientHistory
		}
		to = sorted[len(sorted)-2]
	} else {
		to = *target
	}

	if !contains(sorted, to) {
		return 0, fmt.Errorf("rollback to v%d: %w", to, ErrVersionNotFound)
	}
	if to >= current {
		return 0, fmt.Errorf("rollback to v%d (current v%d): %w", to, current, ErrInvalidTarget)
	}

	src, err := c.store.LoadPolicyVersion(ctx, to)
	if err != nil {
		return 0, fmt.Errorf("rollback: load v%d: %w", to, err)
	}

	next := policy.Version{
		Version:    current + 1,
		Policy:     src.Policy,
		PromptText: src.PromptText,
		Actions:    []string{policy.RollbackMarker(to)},
		CreatedAt:  c.now(),
	}
	flags := map[string]string{
		KeyLastRollback: c.timestamp(),
		KeyRollbackFrom: strconv.Itoa(current),
		KeyRollbackTo:   strconv.Itoa(to),
	}
	if err := c.store.CommitRollback(ctx, next, flags); err != nil {
		return 0, fmt.Errorf("rollback: commit v%d: %w", next.Version, err)
	}

	log.Printf("[SAFETY] rolled back from v%d to v%d, created v%d", current, to, next.Version)
	capitan.Emit(ctx, events.RolledBack,
		events.FieldFromVersion.Field(current),
		events.FieldToVersion.Field(to),
		events.FieldVersion.Field(next.Version),
	)
	details, _ := json.Marshal(map[string]int{"from": current, "to": to})
	c.audit(ctx, logging.Entry{
		Version:     next.Version,
		Trigger:     logging.TriggerAdmin,
		Decision:    logging.DecisionRollback,
		Reason:      policy.RollbackMarker(to),
		DetailsJSON: string(details),
	})
	return next.Version, nil
}

// #endregion rollback

// #region kill

// Kill terminates the system permanently. There is no revive.
func (c *Controller) Kill(ctx context.Context, reason string) error {
	if err := c.store.SetStatus(ctx, KeyKilled, "true"); err != nil {
		return fmt.Errorf("kill: %w", err)
	}
	if err := c.store.SetStatus(ctx, KeyKilledAt, c.timestamp()); err != nil {
		return fmt.Errorf("kill: %w", err)
	}
	log.Printf("[SAFETY] SYSTEM KILLED (reason=%s), data preserved", reasonOr(reason, "manual"))
	capitan.Emit(ctx, events.Killed, events.FieldReason.Field(reasonOr(reason, "manual")))

	trigger := logging.TriggerAdmin
	if reason != "" {
		trigger = logging.TriggerAuto
	}
	c.audit(ctx, logging.Entry{Trigger: trigger, Decision: logging.DecisionKill, Reason: reason})
	return nil
}

// IsKilled reports whether the system has been killed.
func (c *Controller) IsKilled(ctx context.Context) (bool, error) {
	return c.flag(ctx, KeyKilled)
}

// #endregion kill

// #region should-kill

// ShouldKill evaluates the automatic trip-wire for the iteration that just
// completed. The recent-state history is expected to include it.
func (c *Controller) ShouldKill(ctx context.Context, s state.SystemState, m metrics.IterationMetrics) (bool, KillReason, error) {
	if kill, reason := checkMetrics(c.thresholds, s, m); kill {
		return true, reason, nil
	}
	recent, err := c.store.RecentStates(ctx, RecentStateWindow)
	if err != nil {
		return false, ReasonNone, fmt.Errorf("should kill: recent states: %w", err)
	}
	kill, reason := checkHistory(c.thresholds, recent)
	return kill, reason, nil
}

// CheckKill is ShouldKill over an explicit history. recent holds the most
// recent states, oldest first, including s.
func CheckKill(t Thresholds, s state.SystemState, m metrics.IterationMetrics, recent []state.SystemState) (bool, KillReason) {
	if kill, reason := checkMetrics(t, s, m); kill {
		return true, reason
	}
	if len(recent) > RecentStateWindow {
		recent = recent[len(recent)-RecentStateWindow:]
	}
	return checkHistory(t, recent)
}

func checkMetrics(t Thresholds, s state.SystemState, m metrics.IterationMetrics) (bool, KillReason) {
	if m.ResonanceRatio <= t.KillMinRR {
		return true, ReasonLowResonance
	}
	if m.RejectionDensity >= t.KillMaxRD {
		return true, ReasonHighRejection
	}
	if m.SemanticCollapseIndex >= t.KillMaxSCI {
		return true, ReasonSemanticCollapse
	}
	if s == state.Dead {
		return true, ReasonDeadState
	}
	return false, ReasonNone
}

func checkHistory(t Thresholds, recent []state.SystemState) (bool, KillReason) {
	if TrailingCount(recent, state.Collapsing) >= t.KillConsecutiveCollapsing {
		return true, ReasonConsecutiveCollapsing
	}
	if TrailingCount(recent, state.Mute) >= t.KillConsecutiveMute {
		return true, ReasonConsecutiveMute
	}
	return false, ReasonNone
}

// TrailingCount counts how many states at the end of states equal target,
// stopping at the first mismatch.
func TrailingCount(states []state.SystemState, target state.SystemState) int {
	n := 0
	for i := len(states) - 1; i >= 0; i-- {
		if states[i] != target {
			break
		}
		n++
	}
	return n
}

// #endregion should-kill

// #region status

// Status returns a snapshot of all safety flags.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	var err error
	if st.Frozen, err = c.flag(ctx, KeyFrozen); err != nil {
		return Status{}, err
	}
	if st.Killed, err = c.flag(ctx, KeyKilled); err != nil {
		return Status{}, err
	}
	fields := []struct {
		key string
		dst *string
	}{
		{KeyFrozenAt, &st.FrozenAt},
		{KeyKilledAt, &st.KilledAt},
		{KeyLastRollback, &st.LastRollback},
		{KeyRollbackFrom, &st.RollbackFrom},
		{KeyRollbackTo, &st.RollbackTo},
	}
	for _, f := range fields {
		v, err := c.store.GetStatus(ctx, f.key)
		if err != nil {
			return Status{}, fmt.Errorf("status %s: %w", f.key, err)
		}
		*f.dst = v
	}
	return st, nil
}

// #endregion status

// #region helpers

func (c *Controller) flag(ctx context.Context, key string) (bool, error) {
	v, err := c.store.GetStatus(ctx, key)
	if err != nil {
		return false, fmt.Errorf("status %s: %w", key, err)
	}
	return v == "true", nil
}

func (c *Controller) timestamp() string {
	return c.now().Format(time.RFC3339)
}

func (c *Controller) audit(ctx context.Context, e logging.Entry) {
	if err := c.store.LogDecision(ctx, e); err != nil {
		log.Printf("[SAFETY] failed to record %s decision: %v", e.Decision, err)
	}
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}

// #endregion helpers
