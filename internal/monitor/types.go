package monitor

import (
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
)

// #region health-limits

// HealthLimits holds the thresholds used by CheckHealth.
type HealthLimits struct {
	MinResonance       float64
	MaxRejection       float64
	MaxRefusal         float64
	MaxCollapse        float64
	MinRecentVolume    int // interactions expected within VolumeWindow
	VolumeWindow       time.Duration
	DegradedIssueLimit int // more issues than this is critical
}

// DefaultHealthLimits returns the operational defaults.
func DefaultHealthLimits() HealthLimits {
	return HealthLimits{
		MinResonance:       0.15,
		MaxRejection:       0.7,
		MaxRefusal:         0.5,
		MaxCollapse:        0.6,
		MinRecentVolume:    100,
		VolumeWindow:       24 * time.Hour,
		DegradedIssueLimit: 2,
	}
}

// #endregion health-limits

// #region health-status

// Health levels, in increasing severity.
const (
	Healthy  = "healthy"
	Degraded = "degraded"
	Critical = "critical"
	Dead     = "dead"
)

// Check captures a single health check result.
type Check struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// HealthStatus is the output of CheckHealth.
type HealthStatus struct {
	Status          string   `json:"status"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	Checks          []Check  `json:"checks,omitempty"`
}

// #endregion health-status

// #region summary

// Summary is a point-in-time view of the system.
type Summary struct {
	Timestamp          time.Time                 `json:"timestamp"`
	CurrentIterationID int64                     `json:"current_iteration_id,omitempty"`
	PolicyVersion      int                       `json:"policy_version"`
	TotalInteractions  int                       `json:"total_interactions"`
	RecentInteractions int                       `json:"recent_interactions"`
	TotalIterations    int                       `json:"total_iterations"`
	CurrentState       string                    `json:"current_state"`
	Frozen             bool                      `json:"frozen"`
	Killed             bool                      `json:"killed"`
	LatestMetrics      *metrics.IterationMetrics `json:"latest_metrics,omitempty"`
}

// IterationEntry is one row of the iteration history.
type IterationEntry struct {
	ID                int64                     `json:"id"`
	StartTime         time.Time                 `json:"start_time"`
	EndTime           *time.Time                `json:"end_time,omitempty"`
	State             string                    `json:"state"`
	TotalInteractions int                       `json:"total_interactions"`
	PolicyVersion     int                       `json:"policy_version"`
	Metrics           *metrics.IterationMetrics `json:"metrics,omitempty"`
}

// PolicyEntry is one row of the policy evolution history.
type PolicyEntry struct {
	Version           int       `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	MaxOutputTokens   int       `json:"max_output_tokens"`
	RefusalThreshold  float64   `json:"refusal_threshold"`
	PerturbationLevel float64   `json:"perturbation_level"`
	Temperature       float64   `json:"temperature"`
	Actions           []string  `json:"actions"`
}

// Export bundles the summary and health for JSON output.
type Export struct {
	Summary Summary      `json:"summary"`
	Health  HealthStatus `json:"health"`
}

// #endregion summary
