package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(
		&cobra.Command{Use: "freeze", Short: "Pause policy evolution", Args: cobra.NoArgs, RunE: runFreeze},
		&cobra.Command{Use: "unfreeze", Short: "Resume policy evolution", Args: cobra.NoArgs, RunE: runUnfreeze},
		&cobra.Command{Use: "status", Short: "Show safety flags", Args: cobra.NoArgs, RunE: runStatus},
		&cobra.Command{Use: "run", Short: "Run one iteration cycle now", Args: cobra.NoArgs, RunE: runCycle},
		&cobra.Command{Use: "health", Short: "Show system health", Args: cobra.NoArgs, RunE: runHealth},
	)

	rollback := &cobra.Command{
		Use:   "rollback",
		Short: "Restore an earlier policy version as a new version",
		Long:  "Restore an earlier policy version. Without --to, the version before the latest is restored.",
		Args:  cobra.NoArgs,
		RunE:  runRollback,
	}
	rollback.Flags().Int("to", 0, "Version to restore (default: previous)")
	RootCmd.AddCommand(rollback)

	kill := &cobra.Command{
		Use:   "kill",
		Short: "Permanently stop the engine",
		Long:  "Set the kill flag. There is no undo short of editing the status table.",
		Args:  cobra.NoArgs,
		RunE:  runKill,
	}
	kill.Flags().String("note", "", "Operator note recorded in the controller log")
	RootCmd.AddCommand(kill)
}

func runFreeze(cmd *cobra.Command, args []string) error {
	c, ctx, cancel, err := dial(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	st, err := c.Freeze(ctx)
	if err != nil {
		return fmt.Errorf("freeze: %w", err)
	}
	printJSON(st)
	return nil
}

func runUnfreeze(cmd *cobra.Command, args []string) error {
	c, ctx, cancel, err := dial(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	st, err := c.Unfreeze(ctx)
	if err != nil {
		return fmt.Errorf("unfreeze: %w", err)
	}
	printJSON(st)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, ctx, cancel, err := dial(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	printJSON(st)
	return nil
}

func runCycle(cmd *cobra.Command, args []string) error {
	c, ctx, cancel, err := dial(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	out, err := c.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	printJSON(out)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	c, ctx, cancel, err := dial(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	h, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	printJSON(h)
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	to, _ := cmd.Flags().GetInt("to")

	c, ctx, cancel, err := dial(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	v, err := c.Rollback(ctx, to)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	printJSON(map[string]int{"new_version": v})
	return nil
}

func runKill(cmd *cobra.Command, args []string) error {
	note, _ := cmd.Flags().GetString("note")

	c, ctx, cancel, err := dial(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	st, err := c.Kill(ctx, note)
	if err != nil {
		return fmt.Errorf("kill: %w", err)
	}
	printJSON(st)
	return nil
}
