package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newDeploymentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "Deployment management",
		Long: `List, inspect and delete deployments.

Deleting a deployment with active instances fails unless --cascade is
given, which also removes its instances and history.`,
	}

	cmd.AddCommand(newDeploymentsListCommand())
	cmd.AddCommand(newDeploymentsResourcesCommand())
	cmd.AddCommand(newDeploymentsDeleteCommand())

	return cmd
}

func newDeploymentsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				deps, err := rt.service.ListDeployments(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(deps))
				for _, d := range deps {
					rows = append(rows, []string{d.ID, d.Name, formatTime(d.DeploymentTime)})
				}
				return printTable(cmd, deps, []string{"ID", "NAME", "DEPLOYED"}, rows)
			})
		},
	}
}

func newDeploymentsResourcesCommand() *cobra.Command {
	var show string

	cmd := &cobra.Command{
		Use:   "resources DEPLOYMENT_ID",
		Short: "List or print the resources of a deployment",
		Example: `  # List resource names
  procflow deployments resources 4b1c...

  # Print one resource
  procflow deployments resources 4b1c... --show loan-v1.bpmn`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if show != "" {
					data, err := rt.service.GetDeploymentResource(ctx, args[0], show)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}

				names, err := rt.service.ListDeploymentResources(ctx, args[0])
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(names))
				for _, n := range names {
					rows = append(rows, []string{n})
				}
				return printTable(cmd, names, []string{"RESOURCE"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&show, "show", "", "print the named resource")

	return cmd
}

func newDeploymentsDeleteCommand() *cobra.Command {
	var cascade bool

	cmd := &cobra.Command{
		Use:   "delete DEPLOYMENT_ID",
		Short: "Delete a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if err := rt.service.DeleteDeployment(ctx, args[0], cascade); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted deployment %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "also delete instances and history")

	return cmd
}
