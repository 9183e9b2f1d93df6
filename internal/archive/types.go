package archive

import (
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// #region iteration

// Iteration is one row of the iterations table. Metrics is nil while the
// iteration is pending and for failed iterations, which persist "{}".
type Iteration struct {
	ID                int64
	StartTime         time.Time
	EndTime           time.Time
	TotalInteractions int
	State             state.SystemState
	Metrics           *metrics.IterationMetrics
	PolicyVersion     int
}

// Completed reports whether the iteration has left the pending state.
func (it Iteration) Completed() bool {
	return it.State != state.Pending
}

// #endregion iteration

// #region new-interaction

// NewInteraction is the input to RecordInteraction. A zero Timestamp means now.
type NewInteraction struct {
	Timestamp    time.Time
	UserInput    string
	ResponseText string
	Feedback     string
	Refusal      bool
}

// #endregion new-interaction
