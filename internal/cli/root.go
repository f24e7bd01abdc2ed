// Package cli implements the incstep command-line interface using Cobra.
// One process binary serves two roles selected by subcommand: the broker
// (the forwarder/barrier coordinator) and a model (an embedding process
// running one simulation model against the broker).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "incstep",
	Short: "incstep — federated discrete-time simulation message broker",
	Long: `incstep coordinates independent simulation models through
barrier-synchronized increment pulses over a ZeroMQ pub/sub fabric.

Run "incstep broker" to start the coordinator, or "incstep model run NAME"
to start a model process against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/incstep/incstep.toml", "path to the process TOML config")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
