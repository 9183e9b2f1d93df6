package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
	"github.com/danielpatrickdp/adaptive-policy/internal/config"
	"github.com/danielpatrickdp/adaptive-policy/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to policy.db")
	cfgPath := flag.String("config", "config.yml", "engine config embedded in the fixture")
	last := flag.Int("last", 4, "number of most recent completed iterations to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out path/to/fixture.json [--config config.yml] [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *cfgPath, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, cfgPath string, last int, outPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := archive.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	f, err := replay.ExportFixture(context.Background(), store, last, replay.FixtureConfig{
		WindowSize:       cfg.WindowSize(),
		StateThresholds:  cfg.StateThresholds,
		EvolutionRules:   cfg.EvolutionRules,
		SafetyThresholds: cfg.SafetyThresholds,
	})
	if err != nil {
		return err
	}

	if err := replay.WriteFixture(outPath, f); err != nil {
		return err
	}
	fmt.Printf("Exported %d iterations to %s\n", len(f.Batches), outPath)
	return nil
}

// #endregion export
