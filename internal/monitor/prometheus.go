package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const metricPrefix = "adaptive_policy_"

var healthValue = map[string]int{Healthy: 1, Degraded: 2, Critical: 3, Dead: 4}

// Prometheus renders the summary and health in the Prometheus text
// exposition format.
func (m *Monitor) Prometheus(ctx context.Context) (string, error) {
	e, err := m.Export(ctx)
	if err != nil {
		return "", err
	}
	s := e.Summary

	var b strings.Builder
	gauge := func(name, help, kind, value string) {
		fmt.Fprintf(&b, "# HELP %s%s %s\n", metricPrefix, name, help)
		fmt.Fprintf(&b, "# TYPE %s%s %s\n", metricPrefix, name, kind)
		fmt.Fprintf(&b, "%s%s %s\n", metricPrefix, name, value)
	}
	itoa := strconv.Itoa
	ftoa := func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

	gauge("policy_version", "Current policy version", "gauge", itoa(s.PolicyVersion))
	gauge("total_interactions", "Total interactions", "counter", itoa(s.TotalInteractions))
	gauge("recent_interactions", "Interactions in the volume window", "gauge", itoa(s.RecentInteractions))
	gauge("total_iterations", "Total iterations", "counter", itoa(s.TotalIterations))
	gauge("frozen", "System frozen flag (1=frozen, 0=active)", "gauge", itoa(boolInt(s.Frozen)))
	gauge("killed", "System killed flag (1=killed, 0=alive)", "gauge", itoa(boolInt(s.Killed)))
	gauge("health_status", "Health status (1=healthy, 2=degraded, 3=critical, 4=dead)", "gauge",
		itoa(healthValue[e.Health.Status]))

	if lm := s.LatestMetrics; lm != nil {
		gauge("total_responses", "Latest total_responses", "gauge", itoa(lm.TotalResponses))
		gauge("resonance_ratio", "Latest resonance_ratio", "gauge", ftoa(lm.ResonanceRatio))
		gauge("rejection_density", "Latest rejection_density", "gauge", ftoa(lm.RejectionDensity))
		gauge("response_length_drift", "Latest response_length_drift", "gauge", ftoa(lm.ResponseLengthDrift))
		gauge("refusal_frequency", "Latest refusal_frequency", "gauge", ftoa(lm.RefusalFrequency))
		gauge("semantic_collapse_index", "Latest semantic_collapse_index", "gauge", ftoa(lm.SemanticCollapseIndex))
		gauge("average_response_length", "Latest average_response_length", "gauge", ftoa(lm.AverageResponseLength))
	}
	return b.String(), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
