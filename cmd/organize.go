package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"photodedup/internal/action"
	"photodedup/internal/engine"
	"photodedup/internal/models"
)

var (
	organizeOutput string
	organizeYes    bool
	organizeDryRun bool
)

var organizeCmd = &cobra.Command{
	Use:   "organize <folder>...",
	Short: "Move duplicate photos into organized folders",
	Long: `Detect duplicates and move them into an organized layout.

Each group's keeper is moved to <output>/original/ and the remaining
copies to <output>/duplicated/. Files are only ever moved, never deleted,
and name collisions in the output get a numeric suffix instead of
overwriting. Moves that already completed are kept if the run is
cancelled partway.

Example:
  photodedup organize ./photos -o ./sorted
  photodedup organize ./photos -o ./sorted --strategy keep-oldest
  photodedup organize ./photos -o ./sorted --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOrganize,
}

func init() {
	addRunFlags(organizeCmd)
	organizeCmd.Flags().StringVarP(&organizeOutput, "output", "o", "", "Output folder for organized files (required)")
	organizeCmd.Flags().BoolVarP(&organizeYes, "yes", "y", false, "Skip confirmation prompt")
	organizeCmd.Flags().BoolVar(&organizeDryRun, "dry-run", false, "Preview the moves without touching any file")
	organizeCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(organizeCmd)
}

func runOrganize(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Action = models.ActionMove
	cfg.OutputDir = organizeOutput
	if err := cfg.Validate(); err != nil {
		return err
	}

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

	// Detect first without touching anything, then confirm and execute
	// the moves against the same result.
	cfg.Action = models.ActionPreview
	res, err := engine.New(cfg, logger, opts...).Run(ctx, args)
	reporter.done()
	if err != nil {
		return err
	}
	if res.Cancelled {
		printRunSummary(res)
		return nil
	}

	if len(res.Groups) == 0 {
		fmt.Println("No duplicate groups found. Nothing to organize.")
		return nil
	}

	toMove := res.TotalDuplicates() + len(res.Groups)
	fmt.Printf("Found %d duplicate groups (%d duplicates, %s reclaimable)\n",
		len(res.Groups), res.TotalDuplicates(), formatSize(res.PotentialSavings))
	fmt.Printf("Will move %d files into %s (original/ and duplicated/)\n\n", toMove, organizeOutput)

	if organizeDryRun {
		for _, op := range res.Operations {
			fmt.Printf("  would move %s (%s)\n", op.Path, op.Role)
		}
		fmt.Println()
		fmt.Println("(Dry run - no files were moved)")
		fmt.Println("Run without --dry-run to actually organize files.")
		return nil
	}

	if !organizeYes {
		fmt.Printf("Are you sure you want to move %d files? [y/N]: ", toMove)
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Drop the simulated preview operations; the executor records the
	// real moves.
	res.Operations = nil

	executor := action.New(models.ActionMove, logger,
		action.WithOutputDir(organizeOutput),
		action.WithReporter(reporter))
	execErr := executor.Execute(ctx, res)
	reporter.done()
	if execErr != nil && ctx.Err() == nil {
		return execErr
	}

	var moved, skipped, failed int
	for _, op := range res.Operations {
		switch op.Status {
		case models.OpMoved:
			moved++
		case models.OpSkipped:
			skipped++
		case models.OpFailed:
			failed++
		}
	}

	fmt.Println()
	if ctx.Err() != nil {
		fmt.Println("Cancelled. Completed moves were kept.")
	}
	fmt.Printf("Moved %d files to %s\n", moved, organizeOutput)
	if skipped > 0 {
		fmt.Printf("Skipped: %d files\n", skipped)
	}
	if failed > 0 {
		fmt.Printf("Failed: %d files\n", failed)
		for _, op := range res.Operations {
			if op.Status == models.OpFailed {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", op.Path, op.Reason)
			}
		}
	}

	return nil
}
