package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
	"github.com/danielpatrickdp/adaptive-policy/internal/config"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to policy.db (DB mode)")
	cfgPath := flag.String("config", "config.yml", "engine config used in DB mode")
	last := flag.Int("last", 10, "number of completed iterations to replay in DB mode")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/policy.db [--config config.yml] [--last N]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *cfgPath, *last)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region modes

func runDBMode(dbPath, cfgPath string, last int) int {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	store, err := archive.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	f, err := replay.ExportFixture(context.Background(), store, last, replay.FixtureConfig{
		WindowSize:       cfg.WindowSize(),
		StateThresholds:  cfg.StateThresholds,
		EvolutionRules:   cfg.EvolutionRules,
		SafetyThresholds: cfg.SafetyThresholds,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "extract iterations: %v\n", err)
		return 2
	}
	return replayFixture(f)
}

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	return replayFixture(f)
}

func replayFixture(f *replay.Fixture) int {
	results, err := replay.Replay(f.Config.InitialPolicy, f.ReplayBatches(), f.Config.ToConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	final := f.Config.InitialPolicy
	if len(results) > 0 {
		final = results[len(results)-1].Policy
	}
	code := printComparison(replay.Compare(results, f.ExpectedResults))
	printSummary(replay.Summarize(results, final))
	return code
}

// #endregion modes

// #region output

// printComparison outputs a comparison table and returns the exit code.
func printComparison(rows []replay.Comparison) int {
	fmt.Printf("%-12s| %-12s| %-12s| %-8s| %-40s| %s\n", "Batch", "Expected", "Replayed", "Action", "Actions", "Match")
	fmt.Printf("%s\n", strings.Repeat("-", 100))

	matches := 0
	for _, c := range rows {
		match := "DIFF"
		if c.Match {
			match = "OK"
			matches++
		}
		got := string(c.Got.State)
		if got == "" {
			got = "-"
		}
		fmt.Printf("%-12s| %-12s| %-12s| %-8s| %-40s| %s\n",
			c.BatchID, c.Expected.State, got, c.Got.Action,
			strings.Join(policy.ActionStrings(c.Got.Actions), ","), match)
	}

	diverge := len(rows) - matches
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", len(rows), matches, diverge)

	if diverge > 0 {
		return 1
	}
	return 0
}

func printSummary(s replay.Summary) {
	fmt.Printf("Batches: %d | evolve %d | no-op %d | frozen %d | skip %d\n",
		s.TotalBatches, s.Evolutions, s.NoOps, s.Frozen, s.Skips)
	if s.Killed {
		fmt.Printf("Killed: %s\n", s.KillReason)
	}
	fmt.Printf("Final policy: %+v\n", s.FinalPolicy)
}

// #endregion output
