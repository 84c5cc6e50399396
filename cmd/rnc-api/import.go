package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/fourone/rnc-api/internal/importer"
)

func newImportCmd() *cobra.Command {
	var update bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a DGII registry export",
		Long: `Import a pipe-delimited DGII registry export into the database.

By default only new RNCs are inserted. With --update, existing records are
overwritten with the file's values.

Examples:
  # First load
  rnc-api import /data/DGII_RNC.TXT

  # Refresh an existing registry
  rnc-api import --update /data/DGII_RNC.TXT`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCLICore()
			if err != nil {
				return err
			}
			defer c.Close()

			return runImport(cmd, c, args[0], update)
		},
	}
	cmd.Flags().BoolVar(&update, "update", false, "Overwrite records that already exist")
	return cmd
}

func runImport(cmd *cobra.Command, c *core, path string, update bool) error {
	out := cmd.OutOrStdout()

	stats, err := c.runner.Import(cmd.Context(), importer.Request{
		Path:           path,
		UpdateExisting: update,
		Operator:       "cli",
		Progress:       printProgress(out, c.logger),
	})
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}

	fmt.Fprintf(out, "Imported %s (%s) in %s\n", path, stats.Encoding, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  processed:  %d\n", stats.Processed)
	fmt.Fprintf(out, "  new:        %d\n", stats.New)
	fmt.Fprintf(out, "  updated:    %d\n", stats.Updated)
	fmt.Fprintf(out, "  duplicates: %d\n", stats.Duplicates)
	fmt.Fprintf(out, "  rejected:   %d\n", stats.Rejected)
	fmt.Fprintf(out, "  errors:     %d\n", stats.Errors)
	return nil
}

// printProgress reports processing progress as a percentage. Other
// phases go to the debug log.
func printProgress(w io.Writer, logger *slog.Logger) importer.ProgressFunc {
	return func(p importer.Progress) {
		if p.Phase != importer.PhaseProcessing || p.Total == 0 {
			logger.Debug("import progress", "phase", p.Phase, "processed", p.Processed, "total", p.Total)
			return
		}
		fmt.Fprintf(w, "  %5.1f%%  %d/%d\n", float64(p.Processed)*100/float64(p.Total), p.Processed, p.Total)
	}
}
