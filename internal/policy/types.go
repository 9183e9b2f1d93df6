package policy

import "time"

// #region prompt-policy

// PromptPolicy holds the tunable generation parameters.
type PromptPolicy struct {
	MaxOutputTokens   int     `yaml:"max_output_tokens" json:"max_output_tokens"`
	RefusalThreshold  float64 `yaml:"refusal_threshold" json:"refusal_threshold"`
	PerturbationLevel float64 `yaml:"perturbation_level" json:"perturbation_level"`
	Temperature       float64 `yaml:"temperature" json:"temperature"`
}

// PolicyKeys lists the configuration keys of PromptPolicy in file order.
var PolicyKeys = []string{"max_output_tokens", "refusal_threshold", "perturbation_level", "temperature"}

// #endregion prompt-policy

// #region evolution-action

// EvolutionAction is a human-readable tag describing a policy adjustment.
type EvolutionAction string

const (
	TightenLength         EvolutionAction = "tighten_length"
	RelaxLength           EvolutionAction = "relax_length"
	RaiseRefusalThreshold EvolutionAction = "raise_refusal_threshold"
	LowerRefusalThreshold EvolutionAction = "lower_refusal_threshold"
	MildPerturbation      EvolutionAction = "mild_perturbation"
	TuneTemperature       EvolutionAction = "tune_temperature"
)

// #endregion evolution-action

// #region version

// Version is an immutable, numbered policy snapshot. Actions records what
// produced it: evolution actions, a rollback marker, or nothing for the seed.
type Version struct {
	Version    int
	Policy     PromptPolicy
	PromptText string
	Actions    []string
	CreatedAt  time.Time
}

// #endregion version
