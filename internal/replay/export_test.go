package replay

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// helper: archive with v1 seeded and one completed iteration per state.
func seededArchive(t *testing.T, states ...state.SystemState) (*archive.Store, []int64) {
	t.Helper()
	ctx := context.Background()
	s, err := archive.NewStore(filepath.Join(t.TempDir(), "export.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if _, err := s.SeedIfEmpty(ctx, startPolicy()); err != nil {
		t.Fatalf("SeedIfEmpty: %v", err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []int64
	for i, st := range states {
		start := base.Add(time.Duration(i) * time.Hour)
		var itemIDs []string
		for j := 0; j < 3; j++ {
			id, err := s.RecordInteraction(ctx, archive.NewInteraction{
				Timestamp:    start.Add(time.Duration(j) * time.Second),
				UserInput:    "q",
				ResponseText: "answer " + strconv.Itoa(i) + " " + strconv.Itoa(j),
				Feedback:     "resonance",
			})
			if err != nil {
				t.Fatalf("RecordInteraction: %v", err)
			}
			itemIDs = append(itemIDs, id)
		}
		itID, err := s.CreateIteration(ctx, start, 1)
		if err != nil {
			t.Fatalf("CreateIteration: %v", err)
		}
		if err := s.Assign(ctx, itID, itemIDs); err != nil {
			t.Fatalf("Assign: %v", err)
		}
		var m *metrics.IterationMetrics
		if st != state.Dead {
			mm := metrics.Empty()
			m = &mm
		}
		err = s.CompleteIteration(ctx, itID, archive.Completion{
			End: start.Add(time.Minute), TotalInteractions: 3, State: st, Metrics: m, PolicyVersion: 1,
		})
		if err != nil {
			t.Fatalf("CompleteIteration: %v", err)
		}
		ids = append(ids, itID)
	}
	return s, ids
}

func TestExportFixture(t *testing.T) {
	s, ids := seededArchive(t, state.Stable, state.Dead, state.Drifting, state.Collapsing)

	f, err := ExportFixture(context.Background(), s, 2, FixtureConfig{WindowSize: 5})
	if err != nil {
		t.Fatalf("ExportFixture: %v", err)
	}

	if len(f.Batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(f.Batches))
	}
	// Oldest first, dead iteration skipped.
	want := []string{strconv.FormatInt(ids[2], 10), strconv.FormatInt(ids[3], 10)}
	for i, b := range f.Batches {
		if b.ID != want[i] {
			t.Errorf("batch %d: expected id %s, got %s", i, want[i], b.ID)
		}
		if len(b.Interactions) != 3 {
			t.Errorf("batch %s: expected 3 interactions, got %d", b.ID, len(b.Interactions))
		}
	}
	if f.ExpectedResults[0].State != string(state.Drifting) || f.ExpectedResults[1].State != string(state.Collapsing) {
		t.Errorf("unexpected expected states: %+v", f.ExpectedResults)
	}
	if f.Config.InitialPolicy != startPolicy() {
		t.Errorf("expected initial policy from v1, got %+v", f.Config.InitialPolicy)
	}
	if f.Config.WindowSize != 5 {
		t.Errorf("expected base config preserved, got window %d", f.Config.WindowSize)
	}
	if f.Batches[0].Interactions[0].Feedback != string(metrics.FeedbackResonance) {
		t.Errorf("expected feedback carried over, got %q", f.Batches[0].Interactions[0].Feedback)
	}
}

func TestExportFixtureEmptyArchive(t *testing.T) {
	s, _ := seededArchive(t)
	if _, err := ExportFixture(context.Background(), s, 3, FixtureConfig{}); err == nil {
		t.Fatal("expected error for archive with no iterations")
	}
}

func TestExportFixtureRejectsNonPositive(t *testing.T) {
	s, _ := seededArchive(t, state.Stable)
	if _, err := ExportFixture(context.Background(), s, 0, FixtureConfig{}); err == nil {
		t.Fatal("expected error for n=0")
	}
}

func TestCompare(t *testing.T) {
	results := []Result{
		{BatchID: "a", State: state.Stable, Action: ActionEvolve, Actions: []policy.EvolutionAction{policy.RelaxLength}},
		{BatchID: "b", State: state.Drifting, Action: ActionNoOp, Actions: []policy.EvolutionAction{}},
	}
	expected := []FixtureExpectedResult{
		{BatchID: "a", State: "stable", Actions: []string{string(policy.RelaxLength)}},
		{BatchID: "b", State: "collapsing"},
		{BatchID: "c", State: "stable"},
	}

	got := Compare(results, expected)
	if len(got) != 3 {
		t.Fatalf("expected 3 comparisons, got %d", len(got))
	}
	if !got[0].Match {
		t.Error("expected batch a to match")
	}
	if got[1].Match {
		t.Error("expected batch b to diverge on state")
	}
	if got[2].Match {
		t.Error("expected missing batch c to count as mismatch")
	}
}
