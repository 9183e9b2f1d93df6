// Package report builds per-iteration reports and publishes them to sinks.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
)

// ErrMissingKey is returned when a stored report lacks a required key.
var ErrMissingKey = errors.New("report is missing a required key")

// #region report

// IterationReport is the external summary of one iteration cycle.
// PromptVersion is the version evolution produced, nil when none was.
type IterationReport struct {
	IterationID      int64                     `json:"iteration_id"`
	TraceID          string                    `json:"trace_id,omitempty"`
	GeneratedAt      time.Time                 `json:"generated_at"`
	State            string                    `json:"state"`
	Metrics          *metrics.IterationMetrics `json:"metrics"`
	Actions          []string                  `json:"actions"`
	PromptVersion    *int                      `json:"prompt_version"`
	InteractionCount int                       `json:"interaction_count"`
	Frozen           bool                      `json:"frozen"`
	Failed           bool                      `json:"failed"`
	Error            string                    `json:"error,omitempty"`
}

// ObjectName is the file/object name used by every sink.
func (r IterationReport) ObjectName() string {
	return fmt.Sprintf("iteration_%06d.json", r.IterationID)
}

// Marshal encodes the report as indented JSON.
func (r IterationReport) Marshal() ([]byte, error) {
	if r.Actions == nil {
		r.Actions = []string{}
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return b, nil
}

// Parse decodes a stored report, requiring the core keys.
func Parse(data []byte) (IterationReport, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return IterationReport{}, fmt.Errorf("parse report: %w", err)
	}
	for _, k := range []string{"iteration_id", "metrics", "state", "actions", "prompt_version"} {
		if _, ok := raw[k]; !ok {
			return IterationReport{}, fmt.Errorf("%w: %s", ErrMissingKey, k)
		}
	}
	var r IterationReport
	if err := json.Unmarshal(data, &r); err != nil {
		return IterationReport{}, fmt.Errorf("parse report: %w", err)
	}
	return r, nil
}

// #endregion report

// #region sinks

// Sink publishes reports somewhere durable.
type Sink interface {
	Publish(ctx context.Context, r IterationReport) error
}

// FileSink writes each report as a JSON file under Dir.
type FileSink struct {
	Dir string
}

// Publish writes the report, creating Dir if needed.
func (f FileSink) Publish(_ context.Context, r IterationReport) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}
	b, err := r.Marshal()
	if err != nil {
		return err
	}
	path := filepath.Join(f.Dir, r.ObjectName())
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Load reads a report written by FileSink.
func Load(path string) (IterationReport, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return IterationReport{}, fmt.Errorf("read report: %w", err)
	}
	return Parse(b)
}

// MultiSink publishes to every sink and joins their errors.
type MultiSink []Sink

// Publish tries every sink even if an earlier one fails.
func (m MultiSink) Publish(ctx context.Context, r IterationReport) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// #endregion sinks
