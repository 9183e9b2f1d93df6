package metrics

import (
	"strings"
	"time"
)

// #region feedback

// Feedback is the tag a user attached to a response. Known tags drive the
// metrics; anything else is carried verbatim and counts toward neither
// resonance nor rejection.
type Feedback string

const (
	FeedbackResonance Feedback = "resonance"
	FeedbackRejection Feedback = "rejection"
	FeedbackIgnore    Feedback = "ignore"
)

// ParseFeedback maps a stored tag to a Feedback. Known tags match exactly,
// case and whitespace included; anything else is free-form text.
func ParseFeedback(raw string) Feedback {
	return Feedback(raw)
}

// Known reports whether f is one of the standard tags.
func (f Feedback) Known() bool {
	return f == FeedbackResonance || f == FeedbackRejection || f == FeedbackIgnore
}

// #endregion feedback

// #region interaction

// Interaction is one logged exchange between a user and the service.
type Interaction struct {
	ID           string
	IterationID  int64 // 0 while unassigned
	Timestamp    time.Time
	UserInput    string
	ResponseText string
	Feedback     Feedback
	Refusal      bool
}

// ResponseLength is the whitespace word count of the response.
func (i Interaction) ResponseLength() int {
	return len(strings.Fields(i.ResponseText))
}

// #endregion interaction

// #region iteration-metrics

// IterationMetrics is the health snapshot computed for one iteration.
type IterationMetrics struct {
	TotalResponses        int     `json:"total_responses"`
	ResonanceRatio        float64 `json:"resonance_ratio"`
	RejectionDensity      float64 `json:"rejection_density"`
	ResponseLengthDrift   float64 `json:"response_length_drift"`
	RefusalFrequency      float64 `json:"refusal_frequency"`
	SemanticCollapseIndex float64 `json:"semantic_collapse_index"`
	AverageResponseLength float64 `json:"average_response_length"`
}

// Empty returns the metrics reported for a cycle with no interactions.
func Empty() IterationMetrics {
	return IterationMetrics{ResponseLengthDrift: 1.0}
}

// #endregion iteration-metrics

// DefaultWindowSize is the rejection-density window used when callers pass 0.
const DefaultWindowSize = 5
