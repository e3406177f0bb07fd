package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/procflow/procflow/pkg/engine"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable writes rows under header, or v as JSON when --json is set.
func printTable(cmd *cobra.Command, v interface{}, header []string, rows [][]string) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, v)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "No results")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// printVariables writes vars sorted by name.
func printVariables(cmd *cobra.Command, vars engine.ProcessVariables) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), vars)
	}
	rows := make([][]string, 0, len(vars))
	for _, name := range vars.Names() {
		rows = append(rows, []string{name, fmt.Sprintf("%v", vars[name])})
	}
	return printTable(cmd, vars, []string{"NAME", "VALUE"}, rows)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// parseVariables builds process variables from a YAML/JSON file and
// key=value pairs. Pair values are decoded as YAML scalars, so numbers and
// booleans keep their type; pairs win over the file.
func parseVariables(file string, pairs []string, readFile func(string) ([]byte, error)) (engine.ProcessVariables, error) {
	vars := engine.ProcessVariables{}

	if file != "" {
		data, err := readFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read variables file: %w", err)
		}
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return nil, fmt.Errorf("failed to parse variables file: %w", err)
		}
	}

	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid variable %q, expected name=value", pair)
		}
		var value interface{}
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		vars[strings.TrimSpace(name)] = value
	}
	return vars, nil
}
