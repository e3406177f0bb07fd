package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func newStartCommand() *cobra.Command {
	var (
		businessKey string
		vars        []string
		varsFile    string
	)

	cmd := &cobra.Command{
		Use:   "start PROCESS_KEY",
		Short: "Start a process instance",
		Long: `Start the latest version of the process definition with the given key.

Variables are given as name=value pairs; values are read as YAML scalars,
so numbers and booleans keep their type. A YAML or JSON file can supply a
whole mapping, with pairs taking precedence.`,
		Example: `  procflow start loanApproval --business-key loan-42 --var amount=5000 --var urgent=true
  procflow start loanApproval --vars-file application.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variables, err := parseVariables(varsFile, vars, os.ReadFile)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				inst, err := rt.service.StartProcess(ctx, args[0], businessKey, variables)
				if err != nil {
					return err
				}
				return printTable(cmd, inst, []string{"ID", "DEFINITION", "BUSINESS KEY", "STATUS", "STARTED"}, [][]string{
					{inst.ID, inst.DefinitionID, orDash(inst.BusinessKey), string(inst.Status), formatTime(inst.StartTime)},
				})
			})
		},
	}

	cmd.Flags().StringVar(&businessKey, "business-key", "", "business key of the instance")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "process variable as name=value (repeatable)")
	cmd.Flags().StringVar(&varsFile, "vars-file", "", "YAML or JSON file with process variables")

	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
