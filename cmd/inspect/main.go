package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
	"github.com/danielpatrickdp/adaptive-policy/internal/logging"
	"github.com/danielpatrickdp/adaptive-policy/internal/monitor"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to policy.db")
	view := flag.String("view", "summary", "summary | versions | iterations | audit | metrics")
	last := flag.Int("last", 20, "show N most recent rows")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	exportPath := flag.String("export", "", "write summary and health JSON to this path and exit")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/policy.db [--view summary|versions|iterations|audit|metrics] [--last N] [--json] [--export out.json]")
		os.Exit(2)
	}

	store, err := archive.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	mon := monitor.New(store, monitor.DefaultHealthLimits())

	if *exportPath != "" {
		if err := mon.WriteJSON(ctx, *exportPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported monitoring data to %s\n", *exportPath)
		return
	}

	switch *view {
	case "summary":
		err = runSummary(ctx, mon, *jsonOut)
	case "versions":
		err = runVersions(ctx, mon, *last, *jsonOut)
	case "iterations":
		err = runIterations(ctx, mon, *last, *jsonOut)
	case "audit":
		err = runAudit(store, *last, *jsonOut)
	case "metrics":
		var text string
		text, err = mon.Prometheus(ctx)
		if err == nil {
			fmt.Print(text)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown view %q\n", *view)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region summary

func runSummary(ctx context.Context, mon *monitor.Monitor, jsonOut bool) error {
	exp, err := mon.Export(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(exp)
	}

	s, h := exp.Summary, exp.Health
	fmt.Printf("Policy version:  %d\n", s.PolicyVersion)
	fmt.Printf("State:           %s\n", s.CurrentState)
	fmt.Printf("Iterations:      %d\n", s.TotalIterations)
	fmt.Printf("Interactions:    %d total, %d recent\n", s.TotalInteractions, s.RecentInteractions)
	fmt.Printf("Frozen / Killed: %v / %v\n", s.Frozen, s.Killed)
	if m := s.LatestMetrics; m != nil {
		fmt.Printf("\nLatest metrics:\n")
		fmt.Printf("  RR  %.4f\n  RD  %.4f\n  RLD %.4f\n  RF  %.4f\n  SCI %.4f\n",
			m.ResonanceRatio, m.RejectionDensity, m.ResponseLengthDrift, m.RefusalFrequency, m.SemanticCollapseIndex)
	}

	fmt.Printf("\nHealth: %s\n", strings.ToUpper(h.Status))
	for _, issue := range h.Issues {
		fmt.Printf("  - %s\n", issue)
	}
	for _, rec := range h.Recommendations {
		fmt.Printf("  > %s\n", rec)
	}
	return nil
}

// #endregion summary

// #region history

func runVersions(ctx context.Context, mon *monitor.Monitor, last int, jsonOut bool) error {
	rows, err := mon.PolicyHistory(ctx, last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	fmt.Printf("%-8s  %6s  %8s  %8s  %6s  %-20s  %s\n",
		"Version", "Tokens", "Refusal", "Perturb", "Temp", "Created", "Actions")
	for _, r := range rows {
		fmt.Printf("%-8d  %6d  %8.3f  %8.3f  %6.3f  %-20s  %s\n",
			r.Version, r.MaxOutputTokens, r.RefusalThreshold, r.PerturbationLevel, r.Temperature,
			r.CreatedAt.Format("2006-01-02T15:04:05Z"), strings.Join(r.Actions, ","))
	}
	return nil
}

func runIterations(ctx context.Context, mon *monitor.Monitor, last int, jsonOut bool) error {
	rows, err := mon.IterationHistory(ctx, last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no iterations found")
		return nil
	}

	fmt.Printf("%-6s  %-11s  %6s  %7s  %8s  %8s  %s\n", "ID", "State", "Count", "Policy", "RR", "RD", "Start")
	for _, r := range rows {
		rr, rd := "-", "-"
		if r.Metrics != nil {
			rr = fmt.Sprintf("%.4f", r.Metrics.ResonanceRatio)
			rd = fmt.Sprintf("%.4f", r.Metrics.RejectionDensity)
		}
		fmt.Printf("%-6d  %-11s  %6d  %7d  %8s  %8s  %s\n",
			r.ID, r.State, r.TotalInteractions, r.PolicyVersion, rr, rd, r.StartTime.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

func runAudit(store *archive.Store, last int, jsonOut bool) error {
	entries, err := logging.ListDecisions(store.DB(), last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(entries)
	}
	fmt.Printf("%-20s  %-7s  %-12s  %7s  %s\n", "Time", "Trigger", "Decision", "Version", "Reason")
	for _, e := range entries {
		fmt.Printf("%-20s  %-7s  %-12s  %7d  %s\n",
			e.CreatedAt.Format("2006-01-02T15:04:05Z"), e.Trigger, e.Decision, e.Version, e.Reason)
	}
	return nil
}

// #endregion history

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion output
