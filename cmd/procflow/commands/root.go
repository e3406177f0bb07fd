package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "procflow",
		Short: "procflow - business process orchestration",
		Long: `procflow runs business processes such as loan origination and client
onboarding against a pluggable process engine, coordinating them with a
core-banking API.

Engines:
  - FLOWABLE: a remote Flowable REST service
  - EMBEDDED: a local SQLite-backed engine for sequential user-task processes`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newDefinitionsCommand())
	rootCmd.AddCommand(newDeploymentsCommand())
	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newInstancesCommand())
	rootCmd.AddCommand(newTasksCommand())
	rootCmd.AddCommand(newCompleteCommand())
	rootCmd.AddCommand(newTerminateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
