package evolution

import (
	"errors"
	"math"

	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// ErrMissingRules is returned when Evolve is called without rules.
var ErrMissingRules = errors.New("evolution rules are required")

// #region evolve

// Evolve is a pure function computing the next policy from the current
// metrics and policy. prev is accepted for future use and currently ignored.
// Every shift is applied whether or not it crosses its action threshold;
// actions only annotate the result.
func Evolve(m metrics.IterationMetrics, prev *metrics.IterationMetrics, current policy.PromptPolicy, r *Rules) (Result, error) {
	if r == nil {
		return Result{}, ErrMissingRules
	}
	_ = prev

	d := distances(m, r)
	s := shifts(d, r)
	actions := classifyActions(s, r)

	next := policy.PromptPolicy{
		MaxOutputTokens:   clampInt(current.MaxOutputTokens+s.TokenDelta, r.MinOutputTokens, r.MaxOutputTokens),
		RefusalThreshold:  clamp(current.RefusalThreshold+s.RefusalShift, 0, 1),
		PerturbationLevel: clamp(current.PerturbationLevel+s.PerturbationShift, 0, 1),
		Temperature:       clamp(current.Temperature+s.TemperatureShift, r.MinTemperature, r.MaxTemperature),
	}

	return Result{
		Actions:    actions,
		Policy:     next,
		PromptText: policy.Render(next),
		Distances:  d,
		Shifts:     s,
	}, nil
}

// #endregion evolve

// #region terms

func distances(m metrics.IterationMetrics, r *Rules) Distances {
	return Distances{
		RRLow:   pos(r.TargetRR - m.ResonanceRatio),
		RRHigh:  pos(m.ResonanceRatio - r.TargetRRHigh),
		RDHigh:  pos(m.RejectionDensity - r.TargetRD),
		RLDDrop: pos(r.TargetRLD - m.ResponseLengthDrift),
		RFHigh:  pos(m.RefusalFrequency - r.TargetRF),
		RFLow:   pos(r.TargetRFLow - m.RefusalFrequency),
		SCIHigh: pos(m.SemanticCollapseIndex - r.TargetSCI),
	}
}

func shifts(d Distances, r *Rules) Shifts {
	lengthDelta := r.LengthRelaxWeight*(d.RLDDrop+d.RFHigh) -
		r.LengthTightenWeight*(d.RRLow+d.RDHigh)

	refusalDelta := r.RefusalRaiseWeight*(d.RRLow+d.RDHigh+d.RRHigh+d.RFLow) -
		r.RefusalLowerWeight*(d.RFHigh+d.RLDDrop)

	temperatureDelta := r.TemperatureWeight * (d.SCIHigh - d.RRLow - d.RDHigh)

	return Shifts{
		TokenDelta:        roundTokens(lengthDelta * r.LengthScale),
		RefusalShift:      refusalDelta * r.RefusalScale,
		PerturbationShift: d.SCIHigh * r.PerturbationWeight * r.PerturbationScale,
		TemperatureShift:  temperatureDelta * r.TemperatureScale,
	}
}

func classifyActions(s Shifts, r *Rules) []policy.EvolutionAction {
	actions := []policy.EvolutionAction{}

	if s.TokenDelta <= -r.ActionThresholdTokens {
		actions = append(actions, policy.TightenLength)
	} else if s.TokenDelta >= r.ActionThresholdTokens {
		actions = append(actions, policy.RelaxLength)
	}

	if s.RefusalShift >= r.ActionThresholdRatio {
		actions = append(actions, policy.RaiseRefusalThreshold)
	} else if s.RefusalShift <= -r.ActionThresholdRatio {
		actions = append(actions, policy.LowerRefusalThreshold)
	}

	if s.PerturbationShift >= r.ActionThresholdRatio {
		actions = append(actions, policy.MildPerturbation)
	}

	if math.Abs(s.TemperatureShift) >= r.ActionThresholdRatio {
		actions = append(actions, policy.TuneTemperature)
	}

	return actions
}

// #endregion terms

// #region helpers

func pos(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// roundTokens rounds half to even and saturates instead of overflowing on
// non-finite or huge inputs.
func roundTokens(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	v = math.RoundToEven(v)
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int(v)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion helpers
