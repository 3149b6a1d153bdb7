package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"photodedup/internal/action"
	"photodedup/internal/engine"
	"photodedup/internal/models"
)

var (
	scanJSON    bool
	scanVerbose bool
	scanLimit   int
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder>...",
	Short: "Scan folders for duplicate photos",
	Long: `Scan folders recursively for photos and detect duplicates.

The scan will:
1. Find all supported images (jpg, png, gif, webp, etc.)
2. Analyze each image (content hash, perceptual hashes, EXIF metadata)
3. Compare images pairwise with the enabled detection methods
4. Group matches transitively and pick a keeper per group

Scanning never modifies any file. Use 'organize' or 'export' to act on
the results.

Example:
  photodedup scan ./photos
  photodedup scan ./photos ./backup --method content-hash --method perceptual
  photodedup scan ./photos --perceptual-threshold 0.95 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	addRunFlags(scanCmd)
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Output the full report as JSON")
	scanCmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "Show match details per group")
	scanCmd.Flags().IntVarP(&scanLimit, "limit", "n", 10, "Limit number of groups to display (0 = all)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Action = models.ActionPreview

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

	if scanJSON {
		data, err := json.MarshalIndent(action.NewReport(res), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize report: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printRunSummary(res)

	groups := res.Groups
	if scanLimit > 0 && scanLimit < len(groups) {
		groups = groups[:scanLimit]
	}
	for _, group := range groups {
		printGroup(group, planFor(res, group.ID), scanVerbose)
	}
	if len(groups) < len(res.Groups) {
		fmt.Printf("... and %d more groups (use -n 0 to show all)\n\n", len(res.Groups)-len(groups))
	}

	if len(res.Groups) > 0 {
		fmt.Println("Run 'photodedup organize <folder> -o <output>' to move duplicates aside")
		fmt.Println("Run 'photodedup export <folder> --out report.json' for a full report")
	}

	return nil
}

func printRunSummary(res *models.RunResult) {
	fmt.Println()
	if res.Cancelled {
		fmt.Println("=== Scan Cancelled (partial results) ===")
	} else {
		fmt.Println("=== Scan Complete ===")
	}
	fmt.Printf("Files found:       %d\n", res.FilesScanned)
	fmt.Printf("Files analyzed:    %d\n", res.FilesAnalyzed)
	if len(res.Skipped) > 0 {
		fmt.Printf("Files skipped:     %d\n", len(res.Skipped))
	}
	fmt.Printf("Comparisons:       %d\n", res.Comparisons)
	fmt.Printf("Duplicate groups:  %d\n", len(res.Groups))
	fmt.Printf("Duplicates found:  %d\n", res.TotalDuplicates())
	fmt.Printf("Potential savings: %s\n", formatSize(res.PotentialSavings))
	fmt.Printf("Elapsed:           %s\n", res.Elapsed.Round(10*time.Millisecond))
	fmt.Println()

	if scanVerbose {
		for _, issue := range res.Skipped {
			fmt.Printf("  skipped %s: %s\n", issue.Path, issue.Reason)
		}
		if len(res.Skipped) > 0 {
			fmt.Println()
		}
	}
}

func printGroup(group *models.DuplicateGroup, plan *models.ActionPlan, verbose bool) {
	methods := make([]string, len(group.MatchedMethods))
	for i, m := range group.MatchedMethods {
		methods[i] = m.String()
	}
	fmt.Printf("Group #%d (%d files, score %.2f, via %s, reclaimable %s)\n",
		group.ID, len(group.Files), group.Score,
		strings.Join(methods, "+"), formatSize(group.SizeSavings))
	fmt.Println(strings.Repeat("-", 60))

	var keeper string
	if plan != nil && plan.Keeper != nil {
		keeper = plan.Keeper.Path
	}

	for _, rec := range group.Files {
		marker := " "
		if keeper != "" {
			if rec.Path == keeper {
				marker = "✓"
			} else {
				marker = "✗"
			}
		}
		fmt.Printf("  %s %-44s  %8s  %s\n",
			marker, shortenPath(rec.Path, 44), formatSize(rec.Size),
			rec.ModTime.Format("2006-01-02 15:04"))
	}

	if plan != nil {
		fmt.Printf("  plan: %s\n", plan.Rationale)
	}
	if verbose {
		for _, m := range group.Matches {
			fmt.Printf("  match %s <-> %s (score %.2f)\n",
				shortenPath(m.PathA, 30), shortenPath(m.PathB, 30), m.Verdict.Score)
		}
	}
	fmt.Println()
}

func planFor(res *models.RunResult, groupID int) *models.ActionPlan {
	for _, p := range res.Plans {
		if p.GroupID == groupID {
			return p
		}
	}
	return nil
}
