package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"photodedup/internal/engine"
	"photodedup/internal/models"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <folder>...",
	Short: "Export a duplicate report as JSON",
	Long: `Detect duplicates and write a structured JSON report.

The report contains the duplicate groups, the per-group keeper plans,
skipped files and run statistics. No photo is modified.

Example:
  photodedup export ./photos --out report.json
  photodedup export ./photos --out report.json --strategy keep-oldest`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	addRunFlags(exportCmd)
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Report output path (required)")
	exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Action = models.ActionExport
	cfg.ReportOut = exportOut

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cache := openCache(cfg, logger)
	if cache != nil {
		defer cache.Close()
	}

	reporter := newBarReporter()
	opts := []engine.Option{engine.WithReporter(reporter)}
	if cache != nil {
		opts = append(opts, engine.WithCache(cache))
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := engine.New(cfg, logger, opts...).Run(ctx, args)
	reporter.done()
	if err != nil {
		return err
	}

	printRunSummary(res)
	if !res.Cancelled {
		fmt.Printf("Report written to %s\n", exportOut)
	}
	return nil
}
