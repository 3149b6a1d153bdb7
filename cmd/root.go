package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"photodedup/internal/config"
	"photodedup/internal/models"
	"photodedup/internal/storage"
)

var (
	cfgFile   string
	cachePath string
	noCache   bool
	workers   int
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:   "photodedup",
	Short: "Find and manage duplicate photos",
	Long: `photodedup is a CLI tool for finding duplicate photos in a collection.

It combines several detection methods: exact content hashing, perceptual
hashing (robust to resizing and recompression), filename similarity, file
size comparison and EXIF metadata agreement. Detected groups can be
previewed, moved into organized folders or exported as a JSON report.

Example usage:
  photodedup scan ./photos                      # Preview duplicate groups
  photodedup organize ./photos -o ./sorted      # Move duplicates aside
  photodedup export ./photos --out report.json  # Write a JSON report
  photodedup cache stats                        # Inspect the feature cache`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	homeDir, _ := os.UserHomeDir()
	defaultCache := filepath.Join(homeDir, ".photodedup", "features.db")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", defaultCache, "Path to the feature cache database")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "Disable the feature cache")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Number of parallel workers (0 = config default)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// Flags shared by the run commands (scan, organize, export).
var (
	methodNames         []string
	perceptualThreshold float64
	filenameThreshold   float64
	sizeTolerance       float64
	metadataMinFields   int
	minMethodMatches    int
	strategyName        string
	extractTimeout      time.Duration
)

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVarP(&methodNames, "method", "m", nil,
		"Detection methods to use (content-hash, perceptual, filename, size, metadata); default all")
	f.Float64Var(&perceptualThreshold, "perceptual-threshold", 0.9, "Perceptual similarity threshold (0.5-1.0)")
	f.Float64Var(&filenameThreshold, "filename-threshold", 0.8, "Filename similarity threshold (0.0-1.0)")
	f.Float64Var(&sizeTolerance, "size-tolerance", 0.02, "Allowed size difference as a fraction of the larger file")
	f.IntVar(&metadataMinFields, "metadata-min-fields", 3, "EXIF fields that must agree for a metadata match")
	f.IntVar(&minMethodMatches, "min-matches", 1, "Methods that must agree for a combined match")
	f.StringVar(&strategyName, "strategy", string(models.StrategyKeepLargest),
		"Keeper strategy (keep-largest, keep-oldest, preview-only)")
	f.DurationVar(&extractTimeout, "timeout", 30*time.Second, "Per-file analysis timeout")
}

// buildConfig loads the config file (or defaults) and layers explicitly set
// flags on top.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if workers > 0 {
		cfg.Workers = workers
	}
	if debug {
		cfg.Debug = true
	}
	if noCache {
		cfg.CachePath = ""
	} else if cmd.Root().PersistentFlags().Changed("cache") || cfg.CachePath == "" {
		cfg.CachePath = cachePath
	}

	f := cmd.Flags()
	if f.Changed("method") {
		mc, err := parseMethods(methodNames)
		if err != nil {
			return nil, err
		}
		cfg.Methods = mc
	}
	if f.Changed("perceptual-threshold") {
		cfg.Thresholds.Perceptual = perceptualThreshold
	}
	if f.Changed("filename-threshold") {
		cfg.Thresholds.Filename = filenameThreshold
	}
	if f.Changed("size-tolerance") {
		cfg.Thresholds.SizeTolerance = sizeTolerance
	}
	if f.Changed("metadata-min-fields") {
		cfg.Thresholds.MetadataMinFields = metadataMinFields
	}
	if f.Changed("min-matches") {
		cfg.Thresholds.MinMethodMatches = minMethodMatches
	}
	if f.Changed("strategy") {
		cfg.Strategy = models.Strategy(strategyName)
	}
	if f.Changed("timeout") {
		cfg.ExtractTimeout = extractTimeout
	}

	return cfg, nil
}

func parseMethods(names []string) (config.MethodsConfig, error) {
	var mc config.MethodsConfig
	for _, name := range names {
		switch name {
		case models.MethodContentHash.String():
			mc.ContentHash = true
		case models.MethodPerceptual.String():
			mc.Perceptual = true
		case models.MethodFilename.String():
			mc.Filename = true
		case models.MethodSize.String():
			mc.Size = true
		case models.MethodMetadata.String():
			mc.Metadata = true
		default:
			return mc, fmt.Errorf("unknown detection method %q", name)
		}
	}
	return mc, nil
}

// newLogger builds the CLI logger. Normal runs only surface warnings so
// human output stays readable; --debug switches to the development logger.
func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return zcfg.Build()
}

// openCache opens the feature cache, or returns nil when disabled. Cache
// trouble is not fatal; the run just recomputes everything.
func openCache(cfg *config.Config, logger *zap.Logger) *storage.Cache {
	if cfg.CachePath == "" {
		return nil
	}
	cache, err := storage.Open(cfg.CachePath)
	if err != nil {
		logger.Warn("feature cache unavailable, continuing without it",
			zap.String("path", cfg.CachePath), zap.Error(err))
		return nil
	}
	return cache
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}
