package metrics

import (
	"math"
	"strings"
	"testing"
)

func tagged(tags ...Feedback) []Interaction {
	out := make([]Interaction, len(tags))
	for i, f := range tags {
		out[i] = Interaction{ResponseText: "a reply", Feedback: f}
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(nil, tagged(FeedbackResonance), 5)

	if m.TotalResponses != 0 {
		t.Fatalf("expected 0 responses, got %d", m.TotalResponses)
	}
	if m.ResonanceRatio != 0 || m.RejectionDensity != 0 || m.RefusalFrequency != 0 ||
		m.SemanticCollapseIndex != 0 || m.AverageResponseLength != 0 {
		t.Fatalf("expected zero ratios, got %+v", m)
	}
	if m.ResponseLengthDrift != 1.0 {
		t.Fatalf("expected drift 1.0, got %f", m.ResponseLengthDrift)
	}
}

func TestResonanceRatioBounds(t *testing.T) {
	cases := [][]Feedback{
		{FeedbackResonance},
		{FeedbackRejection, FeedbackIgnore},
		{FeedbackResonance, FeedbackResonance, "custom note", FeedbackIgnore},
		{"", "", ""},
	}
	for _, tags := range cases {
		items := tagged(tags...)
		m := Compute(items, nil, 5)
		if m.ResonanceRatio < 0 || m.ResonanceRatio > 1 {
			t.Fatalf("resonance ratio %f out of range for %v", m.ResonanceRatio, tags)
		}
		resonant := 0
		for _, f := range tags {
			if f == FeedbackResonance {
				resonant++
			}
		}
		others := float64(len(tags)-resonant) / float64(len(tags))
		if !approx(m.ResonanceRatio+others, 1.0) {
			t.Fatalf("ratios do not account for all records: %f + %f", m.ResonanceRatio, others)
		}
	}
}

func TestRejectionDensityIsWorstWindow(t *testing.T) {
	items := tagged(FeedbackIgnore, FeedbackIgnore, FeedbackRejection, FeedbackRejection, FeedbackRejection, FeedbackIgnore)

	m := Compute(items, nil, 3)

	if !approx(m.RejectionDensity, 1.0) {
		t.Fatalf("expected rejection density 1.0, got %f", m.RejectionDensity)
	}
}

func TestRejectionDensityWindowLargerThanBatch(t *testing.T) {
	items := tagged(FeedbackRejection, FeedbackIgnore)
	if got := RejectionDensity(items, 10); !approx(got, 0.5) {
		t.Fatalf("expected 0.5, got %f", got)
	}
}

func TestUnknownTagsCountForNothing(t *testing.T) {
	items := tagged("I loved it", "rejected!", "RESONANCE ")
	m := Compute(items, nil, 5)
	if m.ResonanceRatio != 0 {
		t.Fatalf("free-form tags must not count as resonance, got %f", m.ResonanceRatio)
	}
	if m.RejectionDensity != 0 {
		t.Fatalf("free-form tags must not count as rejection, got %f", m.RejectionDensity)
	}
}

func TestRefusalFrequencyAndAverageLength(t *testing.T) {
	items := []Interaction{
		{ResponseText: "one two three", Refusal: true},
		{ResponseText: "one", Refusal: false},
	}
	m := Compute(items, nil, 5)
	if !approx(m.RefusalFrequency, 0.5) {
		t.Fatalf("expected refusal frequency 0.5, got %f", m.RefusalFrequency)
	}
	if !approx(m.AverageResponseLength, 2.0) {
		t.Fatalf("expected average length 2, got %f", m.AverageResponseLength)
	}
}

func TestResponseLengthDrift(t *testing.T) {
	prev := []Interaction{{ResponseText: "a b c d"}}
	cur := []Interaction{{ResponseText: "a b"}}

	m := Compute(cur, prev, 5)
	if !approx(m.ResponseLengthDrift, 0.5) {
		t.Fatalf("expected drift 0.5, got %f", m.ResponseLengthDrift)
	}

	silent := []Interaction{{ResponseText: ""}}
	m = Compute(cur, silent, 5)
	if m.ResponseLengthDrift != 1.0 {
		t.Fatalf("expected drift 1.0 against zero-length baseline, got %f", m.ResponseLengthDrift)
	}
}

func TestSemanticCollapseIndex(t *testing.T) {
	prev := []Interaction{{ResponseText: "alpha beta gamma delta"}} // diversity 1.0
	cur := []Interaction{{ResponseText: "om om om om"}}             // diversity 0.25

	m := Compute(cur, prev, 5)
	if !approx(m.SemanticCollapseIndex, 0.75) {
		t.Fatalf("expected collapse 0.75, got %f", m.SemanticCollapseIndex)
	}

	// More diverse than before never reports negative collapse.
	m = Compute(prev, cur, 5)
	if m.SemanticCollapseIndex != 0 {
		t.Fatalf("expected collapse clamped to 0, got %f", m.SemanticCollapseIndex)
	}
}

func TestSemanticCollapseWithoutBaseline(t *testing.T) {
	cur := []Interaction{{ResponseText: strings.Repeat("same ", 20)}}
	m := Compute(cur, nil, 5)
	if m.SemanticCollapseIndex != 0 {
		t.Fatalf("first cycle must report zero collapse, got %f", m.SemanticCollapseIndex)
	}
}

func TestParseFeedback(t *testing.T) {
	cases := map[string]Feedback{
		"resonance":     FeedbackResonance,
		"rejection":     FeedbackRejection,
		"ignore":        FeedbackIgnore,
		"made me think": Feedback("made me think"),
	}
	for raw, want := range cases {
		if got := ParseFeedback(raw); got != want {
			t.Errorf("ParseFeedback(%q) = %q, want %q", raw, got, want)
		}
	}
	if Feedback("made me think").Known() {
		t.Error("free-form feedback should not be known")
	}
	for _, raw := range []string{"Resonance", " REJECTION ", "IGNORE", "resonance "} {
		if ParseFeedback(raw).Known() {
			t.Errorf("ParseFeedback(%q) should not match a known tag", raw)
		}
	}
}

func TestCaseVariantTagsCountForNothing(t *testing.T) {
	items := []Interaction{
		{Feedback: ParseFeedback("Resonance")},
		{Feedback: ParseFeedback(" REJECTION ")},
	}
	m := Compute(items, nil, 5)
	if m.ResonanceRatio != 0 || m.RejectionDensity != 0 {
		t.Fatalf("case variants must not count, got rr=%f rd=%f", m.ResonanceRatio, m.RejectionDensity)
	}
}
