// Package cli implements the policyctl commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-policy/internal/adminrpc"
	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
)

var (
	dbPath    string
	adminAddr string
	timeout   time.Duration
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "policyctl",
	Short: "Operate the adaptive policy engine",
	Long:  "Admin controls for a running controller (over gRPC) and interaction intake into the archive.",

	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $POLICY_DB or data/policy.db)")
	RootCmd.PersistentFlags().StringVarP(&adminAddr, "addr", "a", "", "Controller admin address (default: $ADMIN_ADDR or localhost:50061)")
	RootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Admin call timeout")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("POLICY_DB"); env != "" {
		return env
	}
	return "data/policy.db"
}

func getAdminAddr() string {
	if adminAddr != "" {
		return adminAddr
	}
	if env := os.Getenv("ADMIN_ADDR"); env != "" {
		return env
	}
	return "localhost:50061"
}

func openStore() (*archive.Store, error) {
	return archive.NewStore(getDBPath())
}

// dial connects to the controller and bounds the call with --timeout.
func dial(cmd *cobra.Command) (*adminrpc.Client, context.Context, context.CancelFunc, error) {
	c, err := adminrpc.NewClient(getAdminAddr())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return c, ctx, cancel, nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
