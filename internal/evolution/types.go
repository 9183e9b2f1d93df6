package evolution

import (
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #region rules

// Rules configures policy evolution: metric targets, adjustment weights,
// scales, action thresholds and output bounds. All fields are required.
type Rules struct {
	// Targets
	TargetRR     float64 `yaml:"target_rr" json:"target_rr"`
	TargetRRHigh float64 `yaml:"target_rr_high" json:"target_rr_high"`
	TargetRD     float64 `yaml:"target_rd" json:"target_rd"`
	TargetRLD    float64 `yaml:"target_rld" json:"target_rld"`
	TargetRF     float64 `yaml:"target_rf" json:"target_rf"`
	TargetRFLow  float64 `yaml:"target_rf_low" json:"target_rf_low"`
	TargetSCI    float64 `yaml:"target_sci" json:"target_sci"`

	// Weights
	LengthRelaxWeight   float64 `yaml:"length_relax_weight" json:"length_relax_weight"`
	LengthTightenWeight float64 `yaml:"length_tighten_weight" json:"length_tighten_weight"`
	RefusalRaiseWeight  float64 `yaml:"refusal_raise_weight" json:"refusal_raise_weight"`
	RefusalLowerWeight  float64 `yaml:"refusal_lower_weight" json:"refusal_lower_weight"`
	PerturbationWeight  float64 `yaml:"perturbation_weight" json:"perturbation_weight"`
	TemperatureWeight   float64 `yaml:"temperature_weight" json:"temperature_weight"`

	// Scales
	LengthScale       float64 `yaml:"length_scale" json:"length_scale"`
	RefusalScale      float64 `yaml:"refusal_scale" json:"refusal_scale"`
	PerturbationScale float64 `yaml:"perturbation_scale" json:"perturbation_scale"`
	TemperatureScale  float64 `yaml:"temperature_scale" json:"temperature_scale"`

	// Action thresholds
	ActionThresholdTokens int     `yaml:"action_threshold_tokens" json:"action_threshold_tokens"`
	ActionThresholdRatio  float64 `yaml:"action_threshold_ratio" json:"action_threshold_ratio"`

	// Bounds
	MinOutputTokens int     `yaml:"min_output_tokens" json:"min_output_tokens"`
	MaxOutputTokens int     `yaml:"max_output_tokens" json:"max_output_tokens"`
	MinTemperature  float64 `yaml:"min_temperature" json:"min_temperature"`
	MaxTemperature  float64 `yaml:"max_temperature" json:"max_temperature"`
}

// RuleKeys lists the configuration keys of Rules in file order.
var RuleKeys = []string{
	"target_rr", "target_rr_high", "target_rd", "target_rld", "target_rf", "target_rf_low", "target_sci",
	"length_relax_weight", "length_tighten_weight", "refusal_raise_weight", "refusal_lower_weight",
	"perturbation_weight", "temperature_weight",
	"length_scale", "refusal_scale", "perturbation_scale", "temperature_scale",
	"action_threshold_tokens", "action_threshold_ratio",
	"min_output_tokens", "max_output_tokens", "min_temperature", "max_temperature",
}

// #endregion rules

// #region distances

// Distances are the non-negative gaps between each metric and its target
// range, measured in the direction that matters.
type Distances struct {
	RRLow   float64
	RRHigh  float64
	RDHigh  float64
	RLDDrop float64
	RFHigh  float64
	RFLow   float64
	SCIHigh float64
}

// Shifts are the raw adjustments applied to the policy, before clamping.
type Shifts struct {
	TokenDelta        int
	RefusalShift      float64
	PerturbationShift float64
	TemperatureShift  float64
}

// #endregion distances

// #region result

// Result bundles everything returned by Evolve.
type Result struct {
	Actions    []policy.EvolutionAction
	Policy     policy.PromptPolicy
	PromptText string
	Distances  Distances
	Shifts     Shifts
}

// #endregion result
