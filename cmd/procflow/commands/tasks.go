package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func newTasksCommand() *cobra.Command {
	var (
		instanceID string
		showVars   string
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List pending tasks",
		Example: `  # All pending tasks
  procflow tasks

  # Tasks of one instance
  procflow tasks --instance 7f0e...

  # Variables visible to a task
  procflow tasks --variables 91ac...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if showVars != "" {
					vars, err := rt.service.GetTaskVariables(ctx, showVars)
					if err != nil {
						return err
					}
					return printVariables(cmd, vars)
				}

				tasks, err := rt.service.ListTasks(ctx, instanceID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(tasks))
				for _, t := range tasks {
					rows = append(rows, []string{t.ID, t.Name, orDash(t.Assignee), strconv.Itoa(t.Priority), t.ProcessInstanceID, formatTime(t.CreateTime)})
				}
				return printTable(cmd, tasks, []string{"ID", "NAME", "ASSIGNEE", "PRIORITY", "INSTANCE", "CREATED"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "only tasks of this process instance")
	cmd.Flags().StringVar(&showVars, "variables", "", "show the variables of this task instead")

	return cmd
}

func newCompleteCommand() *cobra.Command {
	var (
		vars     []string
		varsFile string
	)

	cmd := &cobra.Command{
		Use:   "complete TASK_ID",
		Short: "Complete a pending task",
		Example: `  procflow complete 91ac... --var approved=true`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variables, err := parseVariables(varsFile, vars, os.ReadFile)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if err := rt.service.CompleteTask(ctx, args[0], variables); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Completed task %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "process variable as name=value (repeatable)")
	cmd.Flags().StringVar(&varsFile, "vars-file", "", "YAML or JSON file with process variables")

	return cmd
}

func newTerminateCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "terminate INSTANCE_ID",
		Short: "Terminate an active process instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if err := rt.service.TerminateProcess(ctx, args[0], reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Terminated process instance %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "termination reason recorded in history")

	return cmd
}
