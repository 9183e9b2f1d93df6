package state

import "fmt"

// #region system-state

// SystemState is the operating regime assigned to one iteration.
type SystemState string

const (
	Stable     SystemState = "stable"
	Drifting   SystemState = "drifting"
	Collapsing SystemState = "collapsing"
	Mute       SystemState = "mute"
	Dead       SystemState = "dead"
)

// Pending marks an iteration record that has been created but not completed.
// It is a storage marker, never a classification result.
const Pending SystemState = "pending"

// ParseSystemState maps a stored value back to a SystemState.
func ParseSystemState(s string) (SystemState, error) {
	switch SystemState(s) {
	case Stable, Drifting, Collapsing, Mute, Dead, Pending:
		return SystemState(s), nil
	}
	return "", fmt.Errorf("unknown system state %q", s)
}

// #endregion system-state

// #region thresholds

// Thresholds drive state classification. All fields are required; there are
// no defaults.
type Thresholds struct {
	StableMinRR      float64 `yaml:"stable_min_rr" json:"stable_min_rr"`
	StableMaxRD      float64 `yaml:"stable_max_rd" json:"stable_max_rd"`
	StableMinRLD     float64 `yaml:"stable_min_rld" json:"stable_min_rld"`
	StableMaxRF      float64 `yaml:"stable_max_rf" json:"stable_max_rf"`
	StableMaxSCI     float64 `yaml:"stable_max_sci" json:"stable_max_sci"`
	DriftingRRDrop   float64 `yaml:"drifting_rr_drop" json:"drifting_rr_drop"`
	CollapsingRR     float64 `yaml:"collapsing_rr" json:"collapsing_rr"`
	CollapsingRD     float64 `yaml:"collapsing_rd" json:"collapsing_rd"`
	CollapsingSCI    float64 `yaml:"collapsing_sci" json:"collapsing_sci"`
	MuteMinAvgLength float64 `yaml:"mute_min_avg_length" json:"mute_min_avg_length"`
	MuteMinRR        float64 `yaml:"mute_min_rr" json:"mute_min_rr"`
}

// ThresholdKeys lists the configuration keys of Thresholds in file order.
var ThresholdKeys = []string{
	"stable_min_rr", "stable_max_rd", "stable_min_rld", "stable_max_rf", "stable_max_sci",
	"drifting_rr_drop", "collapsing_rr", "collapsing_rd", "collapsing_sci",
	"mute_min_avg_length", "mute_min_rr",
}

// #endregion thresholds
