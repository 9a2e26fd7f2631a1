package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debugLog   bool
)

var rootCmd = &cobra.Command{
	Use:   "casegen",
	Short: "Multi-agent test case generator",
	Long: `casegen turns a requirement into reviewed test cases.

A supervisor routes every task through four specialist agents:
  - analyzer:  breaks the requirement down
  - designer:  derives test points from the analysis
  - writer:    writes test cases from the test points
  - reviewer:  scores the test cases (0-100)

Test cases scoring below the pass score go back to the writer until they
pass or the iteration budget is spent. Every task is stored and can be
inspected with 'casegen status' or continued with 'casegen resume'.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user and project config)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Write a debug log per task")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
