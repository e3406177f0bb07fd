package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var processKey string

	cmd := &cobra.Command{
		Use:   "history [INSTANCE_ID]",
		Short: "Show finished process instances",
		Long: `Without an argument, list finished instances. With an instance id, show
its historic record and final variables.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if len(args) == 1 {
					hist, err := rt.service.GetProcessHistory(ctx, args[0])
					if err != nil {
						return err
					}
					if jsonOutput {
						return printJSON(cmd.OutOrStdout(), hist)
					}
					i := hist.Instance
					if err := printTable(cmd, hist, []string{"ID", "OUTCOME", "STARTED", "ENDED", "DURATION", "REASON"}, [][]string{
						{i.ID, string(i.Outcome), formatTime(i.StartTime), formatTime(i.EndTime), i.Duration.String(), orDash(i.Reason)},
					}); err != nil {
						return err
					}
					cmd.Println()
					return printVariables(cmd, hist.Variables)
				}

				hist, err := rt.service.ListHistoricInstances(ctx, processKey)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(hist))
				for _, h := range hist {
					rows = append(rows, []string{h.ID, h.DefinitionID, orDash(h.BusinessKey), string(h.Outcome), formatTime(h.EndTime), h.Duration.String()})
				}
				return printTable(cmd, hist, []string{"ID", "DEFINITION", "BUSINESS KEY", "OUTCOME", "ENDED", "DURATION"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&processKey, "process-key", "", "only instances of this definition key")

	return cmd
}
