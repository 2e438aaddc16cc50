// Package main implements the dmlbench binary, which compares the throughput
// and latency of data-manipulation statements under two concurrency-control
// modes.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "dmlbench: %s\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dmlbench",
		Short:         "dmlbench compares DML throughput and latency under optimistic and pessimistic transactions",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # TiDB on localhost:4000, 16 workers, 60 second trials
  dmlbench run --concurrency 16 --duration 60s

  # Local SQLite run of the update operations
  dmlbench run --driver sqlite3 --database /tmp/bench.db --rows 100000 --operations point_update,range_update

  # Recompute the report of a saved run over 10%-90% of each trial
  dmlbench report --samples benchmark_samples_20260101_120000.dump --window-start 0.1 --window-end 0.9
`,
	}
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newReportCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the dmlbench version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "dmlbench version %s (commit: %s)\n", version, commit)
			return err
		},
	}
	return cmd
}
