package commands

import (
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/procflow/procflow/pkg/providers"
)

// versionInfo is printed by the version command.
type versionInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	BuildDate string   `json:"build_date"`
	GoVersion string   `json:"go_version"`
	Engines   []string `json:"engines"`
}

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:   version,
				Commit:    commit,
				BuildDate: buildDate,
				Engines:   providers.NewRegistry().Types(),
			}
			if bi, ok := debug.ReadBuildInfo(); ok {
				info.GoVersion = bi.GoVersion
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), info)
			}
			cmd.Printf("procflow %s\n", info.Version)
			cmd.Printf("  commit:     %s\n", info.Commit)
			cmd.Printf("  built:      %s\n", info.BuildDate)
			cmd.Printf("  go:         %s\n", info.GoVersion)
			cmd.Printf("  engines:    %v\n", info.Engines)
			return nil
		},
	}
}
