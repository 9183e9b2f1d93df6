package metrics

import "strings"

// #region compute

// Compute derives the iteration health metrics from the current batch, using
// previous (may be nil) as the baseline for drift and semantic collapse.
// windowSize <= 0 selects DefaultWindowSize.
func Compute(current, previous []Interaction, windowSize int) IterationMetrics {
	if len(current) == 0 {
		return Empty()
	}
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	total := len(current)
	var resonance, refusals, words int
	for _, it := range current {
		if it.Feedback == FeedbackResonance {
			resonance++
		}
		if it.Refusal {
			refusals++
		}
		words += it.ResponseLength()
	}
	avgLength := float64(words) / float64(total)

	drift := 1.0
	if len(previous) > 0 {
		if prevAvg := averageLength(previous); prevAvg > 0 {
			drift = avgLength / prevAvg
		}
	}

	currentDiversity := diversity(current)
	baseline := currentDiversity
	if len(previous) > 0 {
		baseline = diversity(previous)
	}
	var sci float64
	if baseline > 0 {
		sci = clamp01((baseline - currentDiversity) / baseline)
	}

	return IterationMetrics{
		TotalResponses:        total,
		ResonanceRatio:        float64(resonance) / float64(total),
		RejectionDensity:      RejectionDensity(current, windowSize),
		ResponseLengthDrift:   drift,
		RefusalFrequency:      float64(refusals) / float64(total),
		SemanticCollapseIndex: sci,
		AverageResponseLength: avgLength,
	}
}

// #endregion compute

// #region rejection-density

// RejectionDensity is the worst-case fraction of rejection-tagged interactions
// over every contiguous window of min(windowSize, len) interactions.
func RejectionDensity(items []Interaction, windowSize int) float64 {
	n := len(items)
	if n == 0 {
		return 0
	}
	size := windowSize
	if size > n {
		size = n
	}
	if size < 1 {
		size = 1
	}

	count := 0
	for _, it := range items[:size] {
		if it.Feedback == FeedbackRejection {
			count++
		}
	}
	best := count
	for start := 1; start+size <= n; start++ {
		if items[start-1].Feedback == FeedbackRejection {
			count--
		}
		if items[start+size-1].Feedback == FeedbackRejection {
			count++
		}
		if count > best {
			best = count
		}
	}
	return float64(best) / float64(size)
}

// #endregion rejection-density

// #region helpers

// Diversity is unique words over total words across all responses, 0 when
// there are no words.
func Diversity(items []Interaction) float64 {
	return diversity(items)
}

func diversity(items []Interaction) float64 {
	unique := make(map[string]struct{})
	total := 0
	for _, it := range items {
		for _, w := range strings.Fields(it.ResponseText) {
			unique[w] = struct{}{}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(len(unique)) / float64(total)
}

func averageLength(items []Interaction) float64 {
	if len(items) == 0 {
		return 0
	}
	words := 0
	for _, it := range items {
		words += it.ResponseLength()
	}
	return float64(words) / float64(len(items))
}

// clamp01 restricts v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
