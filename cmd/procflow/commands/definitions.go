package commands

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

func newDefinitionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "definitions",
		Aliases: []string{"defs"},
		Short:   "List process definitions",
		Example: `  procflow definitions
  procflow definitions --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				defs, err := rt.service.ListProcessDefinitions(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(defs))
				for _, d := range defs {
					rows = append(rows, []string{d.Key, strconv.Itoa(d.Version), d.Name, d.ID, d.DeploymentID})
				}
				return printTable(cmd, defs, []string{"KEY", "VERSION", "NAME", "ID", "DEPLOYMENT"}, rows)
			})
		},
	}
}
