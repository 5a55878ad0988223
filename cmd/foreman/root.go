package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Task router & execution orchestrator",
	Long: `Foreman routes tasks through the cheapest process tier that can
deliver them safely, from a single direct worker call up to a planned
multi-phase loop with automated review.

Core capabilities:
- Scores incoming tasks for complexity and risk
- Picks an execution mode: direct, reviewed, full loop, or human approval
- Plans and partitions complex tasks into dependency-ordered phases
- Reviews artifacts against acceptance criteria and safety rules
- Escalates failed work one tier at a time, bounded per task
- Enforces a hard per-task spend ceiling`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
