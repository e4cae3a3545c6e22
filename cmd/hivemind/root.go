package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hivemind",
	Short: "Autonomous task swarm orchestrator",
	Long: `Hivemind decomposes goals into dependency-ordered atomic tasks and
executes them as a bounded swarm of role-specialized workers.

Core capabilities:
- Plans goals into a task DAG with explicit dependencies
- Runs tasks concurrently under a global worker slot budget
- Lets workers invoke capabilities and delegate bounded sub-tasks
- Aggregates sibling results with per-role merge strategies
- Gates autonomous proposals behind an independent consensus review
- Records every proposal in an append-only store`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(proposalsCmd)
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(versionCmd)
}
