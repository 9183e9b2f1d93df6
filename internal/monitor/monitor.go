// Package monitor reports system health and history from the archive.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/safety"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// Source is the read-only archive surface the monitor needs.
type Source interface {
	LatestCompletedIteration(ctx context.Context, before int64) (archive.Iteration, bool, error)
	LatestPolicyVersion(ctx context.Context) (policy.Version, error)
	InteractionCount(ctx context.Context, since time.Time) (int, error)
	IterationCount(ctx context.Context) (int, error)
	ListIterations(ctx context.Context, limit int) ([]archive.Iteration, error)
	ListPolicyVersions(ctx context.Context, limit int) ([]policy.Version, error)
	GetStatus(ctx context.Context, key string) (string, error)
}

// #region monitor

// Monitor evaluates health and aggregates history. Safe for concurrent use
// when Source is.
type Monitor struct {
	src    Source
	limits HealthLimits
	now    func() time.Time
}

// New creates a monitor with the given limits.
func New(src Source, limits HealthLimits) *Monitor {
	return &Monitor{src: src, limits: limits, now: func() time.Time { return time.Now().UTC() }}
}

// #endregion monitor

// #region summary

// Summary collects the current system view.
func (m *Monitor) Summary(ctx context.Context) (Summary, error) {
	out := Summary{Timestamp: m.now(), CurrentState: "unknown"}

	latest, ok, err := m.src.LatestCompletedIteration(ctx, math.MaxInt64)
	if err != nil {
		return Summary{}, fmt.Errorf("latest iteration: %w", err)
	}
	if ok {
		out.CurrentIterationID = latest.ID
		out.CurrentState = string(latest.State)
		out.LatestMetrics = latest.Metrics
	}

	v, err := m.src.LatestPolicyVersion(ctx)
	switch {
	case errors.Is(err, archive.ErrNotFound):
	case err != nil:
		return Summary{}, fmt.Errorf("latest policy: %w", err)
	default:
		out.PolicyVersion = v.Version
	}

	if out.TotalInteractions, err = m.src.InteractionCount(ctx, time.Time{}); err != nil {
		return Summary{}, err
	}
	if out.RecentInteractions, err = m.src.InteractionCount(ctx, out.Timestamp.Add(-m.limits.VolumeWindow)); err != nil {
		return Summary{}, err
	}
	if out.TotalIterations, err = m.src.IterationCount(ctx); err != nil {
		return Summary{}, err
	}
	if out.Frozen, err = m.flag(ctx, safety.KeyFrozen); err != nil {
		return Summary{}, err
	}
	if out.Killed, err = m.flag(ctx, safety.KeyKilled); err != nil {
		return Summary{}, err
	}
	return out, nil
}

// #endregion summary

// #region health

// CheckHealth grades the system. A killed system is dead. Otherwise each
// failing check adds an issue: none is healthy, up to DegradedIssueLimit is
// degraded, more is critical.
func (m *Monitor) CheckHealth(ctx context.Context) (HealthStatus, error) {
	killed, err := m.flag(ctx, safety.KeyKilled)
	if err != nil {
		return HealthStatus{}, err
	}
	if killed {
		return HealthStatus{
			Status:          Dead,
			Issues:          []string{"System has been killed"},
			Recommendations: []string{"Review termination logs", "Restart with a new instance"},
		}, nil
	}

	latest, ok, err := m.src.LatestCompletedIteration(ctx, math.MaxInt64)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("latest iteration: %w", err)
	}
	if !ok {
		return HealthStatus{
			Status:          Healthy,
			Issues:          []string{},
			Recommendations: []string{"No iterations yet, system initializing"},
		}, nil
	}

	h := HealthStatus{Issues: []string{}, Recommendations: []string{}}
	issue := func(msg, rec string) {
		h.Issues = append(h.Issues, msg)
		h.Recommendations = append(h.Recommendations, rec)
	}

	switch latest.State {
	case state.Collapsing:
		issue("System is in COLLAPSING state", "Consider rollback or freeze")
	case state.Mute:
		issue("System is in MUTE state", "Review prompt policy, it may be too restrictive")
	case state.Drifting:
		issue("System is DRIFTING", "Monitor next iteration closely")
	}

	if mt := latest.Metrics; mt != nil {
		checks := []struct {
			name  string
			value float64
			pass  bool
			msg   string
			rec   string
		}{
			{"resonance_ratio", mt.ResonanceRatio, mt.ResonanceRatio >= m.limits.MinResonance,
				"Very low resonance ratio", "Investigate user feedback patterns"},
			{"rejection_density", mt.RejectionDensity, mt.RejectionDensity <= m.limits.MaxRejection,
				"High rejection density", "Review recent responses for quality issues"},
			{"refusal_frequency", mt.RefusalFrequency, mt.RefusalFrequency <= m.limits.MaxRefusal,
				"High refusal frequency", "Consider lowering refusal threshold"},
			{"semantic_collapse_index", mt.SemanticCollapseIndex, mt.SemanticCollapseIndex <= m.limits.MaxCollapse,
				"High semantic collapse", "Increase perturbation or temperature"},
		}
		for _, c := range checks {
			h.Checks = append(h.Checks, Check{Name: c.name, Value: c.value, Pass: c.pass})
			if !c.pass {
				issue(fmt.Sprintf("%s: %.3f", c.msg, c.value), c.rec)
			}
		}
	}

	recent, err := m.src.InteractionCount(ctx, m.now().Add(-m.limits.VolumeWindow))
	if err != nil {
		return HealthStatus{}, err
	}
	volumeOK := recent >= m.limits.MinRecentVolume
	h.Checks = append(h.Checks, Check{Name: "recent_interactions", Value: float64(recent), Pass: volumeOK})
	if !volumeOK {
		issue(fmt.Sprintf("Low interaction volume: %d in %s", recent, m.limits.VolumeWindow),
			"Increase user engagement or lower iteration threshold")
	}

	frozen, err := m.flag(ctx, safety.KeyFrozen)
	if err != nil {
		return HealthStatus{}, err
	}
	if frozen {
		issue("System evolution is frozen", "Unfreeze to resume evolution once the pause is over")
	}

	switch {
	case len(h.Issues) == 0:
		h.Status = Healthy
	case len(h.Issues) <= m.limits.DegradedIssueLimit:
		h.Status = Degraded
	default:
		h.Status = Critical
	}
	return h, nil
}

// #endregion health

// #region history

// IterationHistory returns the n most recent iterations, oldest first.
func (m *Monitor) IterationHistory(ctx context.Context, n int) ([]IterationEntry, error) {
	its, err := m.src.ListIterations(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]IterationEntry, 0, len(its))
	for i := len(its) - 1; i >= 0; i-- {
		it := its[i]
		e := IterationEntry{
			ID:                it.ID,
			StartTime:         it.StartTime,
			State:             string(it.State),
			TotalInteractions: it.TotalInteractions,
			PolicyVersion:     it.PolicyVersion,
			Metrics:           it.Metrics,
		}
		if !it.EndTime.IsZero() {
			end := it.EndTime
			e.EndTime = &end
		}
		out = append(out, e)
	}
	return out, nil
}

// PolicyHistory returns up to n policy versions, oldest first.
func (m *Monitor) PolicyHistory(ctx context.Context, n int) ([]PolicyEntry, error) {
	vs, err := m.src.ListPolicyVersions(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]PolicyEntry, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		v := vs[i]
		actions := v.Actions
		if actions == nil {
			actions = []string{}
		}
		out = append(out, PolicyEntry{
			Version:           v.Version,
			CreatedAt:         v.CreatedAt,
			MaxOutputTokens:   v.Policy.MaxOutputTokens,
			RefusalThreshold:  v.Policy.RefusalThreshold,
			PerturbationLevel: v.Policy.PerturbationLevel,
			Temperature:       v.Policy.Temperature,
			Actions:           actions,
		})
	}
	return out, nil
}

// #endregion history

// #region export

// Export gathers the summary and health together.
func (m *Monitor) Export(ctx context.Context) (Export, error) {
	s, err := m.Summary(ctx)
	if err != nil {
		return Export{}, err
	}
	h, err := m.CheckHealth(ctx)
	if err != nil {
		return Export{}, err
	}
	return Export{Summary: s, Health: h}, nil
}

// WriteJSON writes Export to path as indented JSON.
func (m *Monitor) WriteJSON(ctx context.Context, path string) error {
	e, err := m.Export(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// #endregion export

func (m *Monitor) flag(ctx context.Context, key string) (bool, error) {
	v, err := m.src.GetStatus(ctx, key)
	if err != nil {
		return false, fmt.Errorf("status %s: %w", key, err)
	}
	return v == "true", nil
}
