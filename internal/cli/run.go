package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/incstep-network/incstep/internal/daemon"
	"github.com/incstep-network/incstep/internal/models/population"
	"github.com/incstep-network/incstep/internal/models/trade"
	"github.com/incstep-network/incstep/internal/runtime"
)

func init() {
	rootCmd.AddCommand(brokerCmd)
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelRunCmd)
}

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run the broker: forwarder, barrier coordinator, and message log",
	RunE:  runBroker,
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Model process commands",
}

var modelRunCmd = &cobra.Command{
	Use:   "run NAME",
	Short: "Run a model process against the broker",
	Long: `Run a model process. NAME selects which built-in model
implementation to embed (e.g. "trade" or "population"); the model's
identity, schema directories, and graph paths come from the TOML config.`,
	Args: cobra.ExactArgs(1),
	RunE: runModel,
}

// modelFactories maps a built-in model name to its constructor. Adding a
// new simulation model means writing an internal/models/<name> package
// implementing runtime.Model and registering it here.
var modelFactories = map[string]func() runtime.Model{
	"trade":      func() runtime.Model { return trade.New() },
	"population": func() runtime.Model { return population.New() },
}

func runBroker(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}

	ctx := signalContext()
	fmt.Fprintf(os.Stderr, "starting broker on %s/%s\n", cfg.Transport.ForwarderBind, cfg.Transport.BackendBind)
	return daemon.RunBroker(ctx, cfg)
}

func runModel(cmd *cobra.Command, args []string) error {
	name := args[0]
	factory, ok := modelFactories[name]
	if !ok {
		return fmt.Errorf("unknown model %q", name)
	}

	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Model.ID == "" {
		cfg.Model.ID = name
	}

	ctx := signalContext()
	fmt.Fprintf(os.Stderr, "starting model %q against %s\n", cfg.Model.ID, cfg.Transport.EgressEndpoint)
	return daemon.RunModel(ctx, cfg, factory())
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, the way
// every long-running process in this module shuts down.
func signalContext() context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	_ = stop
	return ctx
}
