package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"photodedup/internal/storage"
)

var cacheYes bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the feature cache",
	Long: `Manage the SQLite feature cache.

Analysis results are cached per file, keyed by path, size and
modification time, so repeat scans only reanalyze changed files.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := storage.Open(cachePath)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer cache.Close()

		stats, err := cache.GetStats()
		if err != nil {
			return fmt.Errorf("failed to read cache stats: %w", err)
		}

		fmt.Printf("Cache:          %s\n", cache.Path())
		fmt.Printf("Cached files:   %d\n", stats.Entries)
		fmt.Printf("Recorded runs:  %d\n", stats.Runs)
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove all cached analysis results",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := storage.Open(cachePath)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer cache.Close()

		if !cacheYes {
			fmt.Printf("Purge all cached entries from %s? [y/N]: ", cache.Path())
			reader := bufio.NewReader(os.Stdin)
			response, _ := reader.ReadString('\n')
			response = strings.TrimSpace(strings.ToLower(response))
			if response != "y" && response != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := cache.Purge(); err != nil {
			return fmt.Errorf("failed to purge cache: %w", err)
		}
		fmt.Println("Cache purged.")
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().BoolVarP(&cacheYes, "yes", "y", false, "Skip confirmation prompt")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
