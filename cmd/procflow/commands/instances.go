package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func newInstancesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "Process instance inspection",
	}

	cmd.AddCommand(newInstancesListCommand())
	cmd.AddCommand(newInstancesStatusCommand())
	cmd.AddCommand(newInstancesVariablesCommand())

	return cmd
}

func newInstancesListCommand() *cobra.Command {
	var processKey string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active process instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				insts, err := rt.service.ListProcessInstances(ctx, processKey)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(insts))
				for _, i := range insts {
					rows = append(rows, []string{i.ID, i.DefinitionID, orDash(i.BusinessKey), string(i.Status), formatTime(i.StartTime)})
				}
				return printTable(cmd, insts, []string{"ID", "DEFINITION", "BUSINESS KEY", "STATUS", "STARTED"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&processKey, "process-key", "", "only instances of this definition key")

	return cmd
}

func newInstancesStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status INSTANCE_ID",
		Short: "Show the status and outcome of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				cs, err := rt.service.GetCompletionStatus(ctx, args[0])
				if err != nil {
					return err
				}
				status, err := rt.service.GetProcessStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return printTable(cmd, cs, []string{"ID", "STATUS", "COMPLETED", "OUTCOME"}, [][]string{
					{args[0], string(status), boolString(cs.Completed), orDash(string(cs.Outcome))},
				})
			})
		},
	}
}

func newInstancesVariablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "variables INSTANCE_ID",
		Short: "Show the variables of an active instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				vars, err := rt.service.GetProcessVariables(ctx, args[0])
				if err != nil {
					return err
				}
				return printVariables(cmd, vars)
			})
		},
	}
}

func boolString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
