package replay

import (
	"context"
	"fmt"
	"strconv"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// #region export

// Archive is the read side of the store needed to rebuild batches.
type Archive interface {
	ListIterations(ctx context.Context, limit int) ([]archive.Iteration, error)
	LoadByIteration(ctx context.Context, iterationID int64) ([]metrics.Interaction, error)
	LoadPolicyVersion(ctx context.Context, version int) (policy.Version, error)
}

// ExportFixture rebuilds the last n completed iterations as a fixture,
// oldest first. Dead and pending iterations are left out. The initial
// policy is the version the first exported iteration ran under; the
// recorded state of each iteration becomes its expected result.
func ExportFixture(ctx context.Context, src Archive, n int, cfg FixtureConfig) (*Fixture, error) {
	if n <= 0 {
		return nil, fmt.Errorf("export: n must be positive, got %d", n)
	}
	// Over-fetch so skipped iterations don't shrink the export.
	its, err := src.ListIterations(ctx, n*4)
	if err != nil {
		return nil, err
	}

	var picked []archive.Iteration
	for _, it := range its {
		if !it.Completed() || it.State == state.Dead {
			continue
		}
		picked = append(picked, it)
		if len(picked) == n {
			break
		}
	}
	if len(picked) == 0 {
		return nil, fmt.Errorf("export: no completed iterations")
	}
	// ListIterations is newest first.
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}

	start, err := src.LoadPolicyVersion(ctx, picked[0].PolicyVersion)
	if err != nil {
		return nil, fmt.Errorf("export: initial policy: %w", err)
	}
	cfg.InitialPolicy = start.Policy

	f := &Fixture{
		Description: fmt.Sprintf("iterations %d..%d exported from archive", picked[0].ID, picked[len(picked)-1].ID),
		Config:      cfg,
	}
	for _, it := range picked {
		items, err := src.LoadByIteration(ctx, it.ID)
		if err != nil {
			return nil, fmt.Errorf("export: iteration %d: %w", it.ID, err)
		}
		id := strconv.FormatInt(it.ID, 10)
		f.Batches = append(f.Batches, NewFixtureBatch(id, items))
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{
			BatchID: id,
			State:   string(it.State),
		})
	}
	return f, nil
}

// #endregion export

// #region compare

// Comparison lines up one replayed batch with its expectation.
type Comparison struct {
	BatchID  string
	Expected FixtureExpectedResult
	Got      Result
	Match    bool
}

// Compare matches results to expectations by batch ID. Only fields set on
// the expectation are checked. Expectations with no replayed batch count
// as mismatches.
func Compare(results []Result, expected []FixtureExpectedResult) []Comparison {
	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.BatchID] = r
	}

	out := make([]Comparison, 0, len(expected))
	for _, e := range expected {
		r, ok := byID[e.BatchID]
		c := Comparison{BatchID: e.BatchID, Expected: e, Got: r, Match: ok}
		if ok {
			c.Match = matches(e, r)
		}
		out = append(out, c)
	}
	return out
}

func matches(e FixtureExpectedResult, r Result) bool {
	if e.State != "" && e.State != string(r.State) {
		return false
	}
	if e.Action != "" && e.Action != r.Action {
		return false
	}
	if e.Actions != nil {
		got := policy.ActionStrings(r.Actions)
		if len(got) != len(e.Actions) {
			return false
		}
		for i := range got {
			if got[i] != e.Actions[i] {
				return false
			}
		}
	}
	return true
}

// #endregion compare
