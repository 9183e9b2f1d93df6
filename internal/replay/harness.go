package replay

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-policy/internal/config"
	"github.com/danielpatrickdp/adaptive-policy/internal/evolution"
	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/safety"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// Replay outcomes per batch.
const (
	ActionEvolve = "evolve"
	ActionNoOp   = "no_op"
	ActionFrozen = "frozen"
	ActionSkip   = "skip"
	ActionKilled = "killed"
)

// #region types

// Batch is one recorded iteration's interactions, in timestamp order.
type Batch struct {
	ID           string
	Interactions []metrics.Interaction
}

// Config bundles the engine parameters for a replay run.
type Config struct {
	WindowSize int
	Thresholds state.Thresholds
	Rules      evolution.Rules
	Safety     safety.Thresholds
	Frozen     bool // replay with evolution paused
}

// ConfigFrom builds a replay config from a loaded configuration file.
func ConfigFrom(c *config.Config) Config {
	return Config{
		WindowSize: c.WindowSize(),
		Thresholds: c.StateThresholds,
		Rules:      c.EvolutionRules,
		Safety:     c.SafetyThresholds,
	}
}

// Result captures the outcome of replaying one batch.
type Result struct {
	BatchID    string
	Action     string // "evolve" | "no_op" | "frozen" | "skip" | "killed"
	State      state.SystemState
	Metrics    metrics.IterationMetrics
	Actions    []policy.EvolutionAction
	Policy     policy.PromptPolicy // policy in effect after this batch
	KillReason safety.KillReason
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalBatches int
	Evolutions   int
	NoOps        int
	Frozen       int
	Skips        int
	Killed       bool
	KillReason   safety.KillReason
	States       map[state.SystemState]int
	FinalPolicy  policy.PromptPolicy
}

// #endregion types

// #region replay

// Replay runs each batch through metrics, state, evolution and the kill
// check, in memory. Each batch is measured against the previous non-empty
// batch. Replay stops after the batch that trips the kill.
func Replay(start policy.PromptPolicy, batches []Batch, cfg Config) ([]Result, error) {
	current := start
	results := make([]Result, 0, len(batches))

	var previous []metrics.Interaction
	var history []state.SystemState

	for _, b := range batches {
		if len(b.Interactions) == 0 {
			results = append(results, Result{BatchID: b.ID, Action: ActionSkip, Policy: current})
			continue
		}

		// 1. Metrics against the previous batch
		m := metrics.Compute(b.Interactions, previous, cfg.WindowSize)
		var prevMetrics *metrics.IterationMetrics
		if len(previous) > 0 {
			pm := metrics.Compute(previous, nil, cfg.WindowSize)
			prevMetrics = &pm
		}

		// 2. State
		st, err := state.Evaluate(m, prevMetrics, &cfg.Thresholds)
		if err != nil {
			return results, fmt.Errorf("batch %s: %w", b.ID, err)
		}
		history = append(history, st)

		r := Result{
			BatchID: b.ID,
			State:   st,
			Metrics: m,
			Actions: []policy.EvolutionAction{},
		}

		// 3. Evolution
		if cfg.Frozen {
			r.Action = ActionFrozen
		} else {
			evo, err := evolution.Evolve(m, prevMetrics, current, &cfg.Rules)
			if err != nil {
				return results, fmt.Errorf("batch %s: %w", b.ID, err)
			}
			current = evo.Policy
			r.Actions = evo.Actions
			r.Action = ActionNoOp
			if len(evo.Actions) > 0 {
				r.Action = ActionEvolve
			}
		}
		r.Policy = current
		previous = b.Interactions

		// 4. Kill check
		if kill, reason := safety.CheckKill(cfg.Safety, st, m, history); kill {
			r.Action = ActionKilled
			r.KillReason = reason
			results = append(results, r)
			break
		}
		results = append(results, r)
	}

	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result, finalPolicy policy.PromptPolicy) Summary {
	s := Summary{
		TotalBatches: len(results),
		States:       make(map[state.SystemState]int),
		FinalPolicy:  finalPolicy,
	}
	for _, r := range results {
		if r.State != "" {
			s.States[r.State]++
		}
		switch r.Action {
		case ActionEvolve:
			s.Evolutions++
		case ActionNoOp:
			s.NoOps++
		case ActionFrozen:
			s.Frozen++
		case ActionSkip:
			s.Skips++
		case ActionKilled:
			s.Killed = true
			s.KillReason = r.KillReason
		}
	}
	return s
}

// #endregion replay
