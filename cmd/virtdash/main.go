// Package main is the entry point for the virtdash CLI.
//
// virtdash talks to a running virtdashd daemon over its HTTP API.
//
// Usage:
//
//	virtdash server show 42          # Snapshot, display state, OS label
//	virtdash server power 42 boot    # Dispatch a power action
//	virtdash server vnc 42           # VNC console details
//	virtdash server traffic 42       # Monthly traffic
//	virtdash server password 42      # Vault-held root password
//	virtdash templates               # OS template catalog
//	virtdash status                  # Daemon status
//	virtdash version                 # Show version info
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	flagAddr    string
	flagVerbose bool

	logger = zap.NewNop()
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "virtdash",
	Short: "Control a virtdashd VPS dashboard daemon",
	Long: `virtdash is the CLI companion to virtdashd.

It reads server snapshots, dispatches power actions, and inspects
VNC, traffic, and template data through the daemon's local HTTP API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			cfg := zap.NewDevelopmentConfig()
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			if built, err := cfg.Build(); err == nil {
				logger = built
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "http://127.0.0.1:8480", "virtdashd API address")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	defer func() { _ = logger.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
