package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/procflow/procflow/pkg/engine"
)

func newDeployCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "deploy FILE...",
		Short: "Deploy process artifacts",
		Long: `Deploy one or more BPMN artifacts to the configured engine.

Each file becomes its own deployment. A rejected artifact is reported with
the engine's errors and makes the command fail after all files were tried.`,
		Example: `  # Deploy a single artifact
  procflow deploy loan-v1.bpmn

  # Deploy under another name
  procflow deploy --name loan.bpmn build/loan-v1.bpmn20.xml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name != "" && len(args) > 1 {
				return fmt.Errorf("--name can only be used with a single file")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				results := make([]*engine.DeploymentResult, 0, len(args))
				rejected := 0
				for _, path := range args {
					content, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("failed to read %s: %w", path, err)
					}
					depName := name
					if depName == "" {
						depName = filepath.Base(path)
					}
					res, err := rt.service.Deploy(ctx, depName, content)
					if err != nil {
						return err
					}
					if !res.Success {
						rejected++
					}
					results = append(results, res)
				}

				if err := printDeployResults(cmd, results); err != nil {
					return err
				}
				if rejected > 0 {
					return fmt.Errorf("%d of %d deployments rejected", rejected, len(results))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "deployment name (defaults to the file name)")

	return cmd
}

func printDeployResults(cmd *cobra.Command, results []*engine.DeploymentResult) error {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "deployed"
		if !r.Success {
			status = "rejected: " + strings.Join(r.Errors, "; ")
		}
		id := r.ID
		if id == "" {
			id = "-"
		}
		rows = append(rows, []string{r.Name, id, status})
	}
	return printTable(cmd, results, []string{"NAME", "DEPLOYMENT", "STATUS"}, rows)
}
