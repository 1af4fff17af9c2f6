// Package cmd implements the cobra CLI entrypoint: a single "run"
// subcommand that loads a config.Bundle (from a YAML file or flag
// defaults), wires a ResourceManager/Environment/Scheduler, and drives
// Scheduler.Simulate for the configured step count. Grounded on the
// teacher's cmd/root.go (flag vars, init() registration, Execute()).
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abmcore/abmcore/config"
	_ "github.com/abmcore/abmcore/env/grid"
	_ "github.com/abmcore/abmcore/env/kdtree"
	_ "github.com/abmcore/abmcore/env/octree"
)

var (
	configPath  string
	environment string
	partitions  int
	steps       int
	dt          float64
	copyOnWrite bool
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "abmcore",
	Short: "Agent-based spatial simulation core",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation for a configured number of steps",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		bundle := config.Defaults()
		if configPath != "" {
			bundle, err = config.Load(configPath)
			if err != nil {
				logrus.Fatalf("loading config: %v", err)
			}
		}
		applyFlagOverrides(cmd, bundle)

		if err := bundle.Validate(); err != nil {
			logrus.Fatalf("invalid config: %v", err)
		}

		logrus.Infof("starting simulation %s: environment=%s partitions=%d dt=%.3f steps=%d",
			bundle.RunID, bundle.Environment, bundle.PartitionCount(), bundle.Dt, bundle.Steps)

		manager, _, scheduler, err := bundle.Build()
		if err != nil {
			logrus.Fatalf("wiring simulation: %v", err)
		}

		scheduler.Simulate(bundle.Steps)
		logrus.Infof("simulation complete: %d steps, %d live agents", scheduler.SimulatedSteps(), manager.NumAgents())
	},
}

// applyFlagOverrides copies any explicitly-set flag onto bundle, letting
// a loaded YAML file's values stand where no flag was passed.
func applyFlagOverrides(cmd *cobra.Command, bundle *config.Bundle) {
	if cmd.Flags().Changed("environment") {
		bundle.Environment = environment
	}
	if cmd.Flags().Changed("partitions") {
		bundle.Partitions = partitions
	}
	if cmd.Flags().Changed("steps") {
		bundle.Steps = steps
	}
	if cmd.Flags().Changed("dt") {
		bundle.Dt = dt
	}
	if cmd.Flags().Changed("copy-on-write") {
		bundle.CopyOnWrite = copyOnWrite
	}
}

// Execute runs the root command, exiting the process with status 1 on
// error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config.Bundle file")
	runCmd.Flags().StringVar(&environment, "environment", "grid", "Environment kind (grid, octree, kdtree)")
	runCmd.Flags().IntVar(&partitions, "partitions", 0, "NUMA partition count (0 = one per logical CPU)")
	runCmd.Flags().IntVar(&steps, "steps", 1, "Number of simulation steps to run")
	runCmd.Flags().Float64Var(&dt, "dt", 1.0, "Per-step time delta")
	runCmd.Flags().BoolVar(&copyOnWrite, "copy-on-write", false, "Use the copy-on-write execution context")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
}
