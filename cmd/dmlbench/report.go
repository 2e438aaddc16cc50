package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmlbench/dmlbench/internal/app"
	"github.com/dmlbench/dmlbench/internal/storage"
)

func newReportCommand() *cobra.Command {
	var req app.ReportRequest
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Recompute the comparison of a saved run over another window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Samples == "" && req.Object == "" {
				return fmt.Errorf("one of --samples or --object is required")
			}
			_, path, err := app.Rereport(cmd.Context(), req, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Results saved to %s\n", path)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.Samples, "samples", "", "sample dump written by a previous run")
	flags.StringVar(&req.Object, "object", "", "archived sample dump to fetch instead of --samples")
	flags.StringVar(&req.Archive.Type, "archive-type", storage.TypeNone, "archive holding --object: local or s3")
	flags.StringVar(&req.Archive.Path, "archive-path", "", "local archive root")
	flags.StringVar(&req.Archive.S3.Bucket, "s3-bucket", "", "S3 archive bucket")
	flags.StringVar(&req.Archive.S3.Region, "s3-region", "", "S3 archive region")
	flags.StringVar(&req.Archive.S3.Endpoint, "s3-endpoint", "", "S3-compatible endpoint")
	flags.BoolVar(&req.Archive.S3.UsePathStyle, "s3-path-style", false, "use path-style S3 addressing")
	flags.Float64Var(&req.WindowStart, "window-start", 0.25, "statistics window start, as a fraction of the configured duration")
	flags.Float64Var(&req.WindowEnd, "window-end", 0.75, "statistics window end, as a fraction of the configured duration")
	flags.BoolVar(&req.RecordedWindow, "recorded-window", false, "window each trial over its recorded duration")
	flags.StringVar(&req.OutputDir, "output-dir", "", "write a new CSV to this directory")
	return cmd
}
