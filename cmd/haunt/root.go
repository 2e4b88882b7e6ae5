package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	simulate   bool
}

// newRootCmd builds the command tree. "haunt" with no subcommand is "haunt run".
func newRootCmd() *cobra.Command {
	opts := &options{}

	runE := func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, *opts)
	}

	root := &cobra.Command{
		Use:   "haunt",
		Short: "Proximity-triggered prop controller.",
		Long: `Watches a range sensor and runs the configured trigger sequence when a
visitor comes within the trigger distance. Interrupt or SIGTERM forces every
device to its safe state before exiting.`,
		SilenceUsage: true,
		RunE:         runE,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to configuration file")
	root.PersistentFlags().BoolVar(&opts.simulate, "simulate", false, "use simulated pins and a scripted visitor instead of hardware")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the controller until interrupted.",
		RunE:  runE,
	})

	root.AddCommand(&cobra.Command{
		Use:   "selftest",
		Short: "Check every device and take a burst of sensor readings.",
		Long: fmt.Sprintf(`Runs the hardware self-test, then takes %d sensor readings. Fails when
no device is usable or fewer than %.0f%% of the readings are valid.`, selfTestReadings, selfTestMinValid*100),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return selftest(ctx, *opts, cmd.OutOrStdout())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "haunt %s (commit %s, built %s)\n", version, commit, date)
		},
	})

	return root
}

// getConfigPath returns the configuration file path.
// Uses HAUNT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HAUNT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
