package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/evolution"
	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/safety"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Batches         []FixtureBatch          `json:"batches"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig carries the engine parameters and the starting policy.
type FixtureConfig struct {
	WindowSize       int                 `json:"window_size"`
	InitialPolicy    policy.PromptPolicy `json:"initial_policy"`
	StateThresholds  state.Thresholds    `json:"state_thresholds"`
	EvolutionRules   evolution.Rules     `json:"evolution_rules"`
	SafetyThresholds safety.Thresholds   `json:"safety_thresholds"`
	Frozen           bool                `json:"frozen,omitempty"`
}

// FixtureBatch is one recorded iteration.
type FixtureBatch struct {
	ID           string               `json:"id"`
	Interactions []FixtureInteraction `json:"interactions"`
}

// FixtureInteraction mirrors metrics.Interaction with JSON tags.
type FixtureInteraction struct {
	Timestamp    time.Time `json:"timestamp"`
	UserInput    string    `json:"user_input"`
	ResponseText string    `json:"response_text"`
	Feedback     string    `json:"feedback,omitempty"`
	Refusal      bool      `json:"refusal,omitempty"`
}

// FixtureExpectedResult captures the expected outcome per batch.
type FixtureExpectedResult struct {
	BatchID string   `json:"batch_id"`
	State   string   `json:"state"`
	Action  string   `json:"action,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToConfig converts a FixtureConfig to a replay Config.
func (fc *FixtureConfig) ToConfig() Config {
	return Config{
		WindowSize: fc.WindowSize,
		Thresholds: fc.StateThresholds,
		Rules:      fc.EvolutionRules,
		Safety:     fc.SafetyThresholds,
		Frozen:     fc.Frozen,
	}
}

// ToBatch converts a FixtureBatch to a replay Batch.
func (fb *FixtureBatch) ToBatch() Batch {
	b := Batch{ID: fb.ID, Interactions: make([]metrics.Interaction, len(fb.Interactions))}
	for i, fi := range fb.Interactions {
		b.Interactions[i] = metrics.Interaction{
			ID:           fmt.Sprintf("%s-%d", fb.ID, i),
			Timestamp:    fi.Timestamp,
			UserInput:    fi.UserInput,
			ResponseText: fi.ResponseText,
			Feedback:     metrics.ParseFeedback(fi.Feedback),
			Refusal:      fi.Refusal,
		}
	}
	return b
}

// ReplayBatches converts every fixture batch.
func (f *Fixture) ReplayBatches() []Batch {
	out := make([]Batch, len(f.Batches))
	for i := range f.Batches {
		out[i] = f.Batches[i].ToBatch()
	}
	return out
}

// NewFixtureBatch converts recorded interactions back into fixture form.
func NewFixtureBatch(id string, items []metrics.Interaction) FixtureBatch {
	fb := FixtureBatch{ID: id, Interactions: make([]FixtureInteraction, len(items))}
	for i, it := range items {
		fb.Interactions[i] = FixtureInteraction{
			Timestamp:    it.Timestamp,
			UserInput:    it.UserInput,
			ResponseText: it.ResponseText,
			Feedback:     string(it.Feedback),
			Refusal:      it.Refusal,
		}
	}
	return fb
}

// #endregion fixture-loader
