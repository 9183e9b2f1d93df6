package state

import (
	"errors"

	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
)

// ErrMissingThresholds is returned when Evaluate is called without thresholds.
var ErrMissingThresholds = errors.New("state thresholds are required")

// #region evaluate

// Evaluate classifies the current iteration. Rules are checked in severity
// order and the first match wins. prev may be nil for the first iteration.
func Evaluate(m metrics.IterationMetrics, prev *metrics.IterationMetrics, t *Thresholds) (SystemState, error) {
	if t == nil {
		return "", ErrMissingThresholds
	}

	// 1. Silence or total disengagement
	if m.TotalResponses == 0 ||
		m.AverageResponseLength <= t.MuteMinAvgLength ||
		m.ResonanceRatio <= t.MuteMinRR {
		return Mute, nil
	}

	// 2. Rejected and unloved, or degenerate output
	if (m.ResonanceRatio <= t.CollapsingRR && m.RejectionDensity >= t.CollapsingRD) ||
		m.SemanticCollapseIndex >= t.CollapsingSCI {
		return Collapsing, nil
	}

	// 3. Sharp resonance drop against the previous iteration
	if prev != nil && prev.ResonanceRatio-m.ResonanceRatio >= t.DriftingRRDrop {
		return Drifting, nil
	}

	// 4. Every health condition holds
	if m.ResonanceRatio >= t.StableMinRR &&
		m.RejectionDensity <= t.StableMaxRD &&
		m.ResponseLengthDrift >= t.StableMinRLD &&
		m.RefusalFrequency <= t.StableMaxRF &&
		m.SemanticCollapseIndex <= t.StableMaxSCI {
		return Stable, nil
	}

	return Drifting, nil
}

// #endregion evaluate
