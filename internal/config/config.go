// Package config provides configuration loading and validation for the
// deduplication engine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"photodedup/internal/models"
)

// Config holds all engine settings. Configuration problems are fatal:
// Validate rejects them before any work begins.
type Config struct {
	Methods    MethodsConfig    `yaml:"methods"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`

	Workers        int           `yaml:"workers"`
	ExtractTimeout time.Duration `yaml:"extract_timeout"`

	Strategy  models.Strategy   `yaml:"strategy"`
	Action    models.ActionMode `yaml:"action"`
	OutputDir string            `yaml:"output_dir"`  // required for the move action
	ReportOut string            `yaml:"report_out"`  // destination for export-report
	CachePath string            `yaml:"cache_path"`  // empty disables the feature cache
	Debug     bool              `yaml:"debug"`
}

// MethodsConfig enables or disables each detection method.
type MethodsConfig struct {
	ContentHash bool `yaml:"content_hash"`
	Perceptual  bool `yaml:"perceptual"`
	Filename    bool `yaml:"filename"`
	Size        bool `yaml:"size"`
	Metadata    bool `yaml:"metadata"`
}

// ThresholdsConfig holds per-method thresholds and the combination policy.
type ThresholdsConfig struct {
	// Perceptual similarity threshold, 0.5-1.0 inclusive; higher is stricter.
	Perceptual float64 `yaml:"perceptual"`
	// Filename similarity threshold, 0.0-1.0.
	Filename float64 `yaml:"filename"`
	// Allowed size difference as a fraction of the larger file.
	SizeTolerance float64 `yaml:"size_tolerance"`
	// Number of EXIF fields that must agree exactly for a metadata match.
	MetadataMinFields int `yaml:"metadata_min_fields"`
	// Number of independently matching methods required for a combined
	// match. 1 means any single method's match is sufficient. A content
	// hash match always qualifies regardless of this setting.
	MinMethodMatches int `yaml:"min_method_matches"`
}

// Default returns the engine defaults: all methods enabled, preview action.
func Default() *Config {
	return &Config{
		Methods: MethodsConfig{
			ContentHash: true,
			Perceptual:  true,
			Filename:    true,
			Size:        true,
			Metadata:    true,
		},
		Thresholds: ThresholdsConfig{
			Perceptual:        0.9,
			Filename:          0.8,
			SizeTolerance:     0.02,
			MetadataMinFields: 3,
			MinMethodMatches:  1,
		},
		Workers:        8,
		ExtractTimeout: 30 * time.Second,
		Strategy:       models.StrategyKeepLargest,
		Action:         models.ActionPreview,
	}
}

// Load reads a YAML config file and applies defaults for unset sections.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// EnabledMethods converts the method flags into a MethodSet.
func (c *Config) EnabledMethods() models.MethodSet {
	return models.MethodSet{
		models.MethodContentHash: c.Methods.ContentHash,
		models.MethodPerceptual:  c.Methods.Perceptual,
		models.MethodFilename:    c.Methods.Filename,
		models.MethodSize:        c.Methods.Size,
		models.MethodMetadata:    c.Methods.Metadata,
	}
}

// Validate checks the configuration before a run starts. Any error here
// aborts the whole run; no file is touched.
func (c *Config) Validate() error {
	if c.EnabledMethods().Count() == 0 {
		return fmt.Errorf("no detection methods enabled")
	}
	if c.Methods.Perceptual {
		if c.Thresholds.Perceptual < 0.5 || c.Thresholds.Perceptual > 1.0 {
			return fmt.Errorf("perceptual threshold %.2f out of range [0.5, 1.0]", c.Thresholds.Perceptual)
		}
	}
	if c.Methods.Filename {
		if c.Thresholds.Filename < 0.0 || c.Thresholds.Filename > 1.0 {
			return fmt.Errorf("filename threshold %.2f out of range [0.0, 1.0]", c.Thresholds.Filename)
		}
	}
	if c.Methods.Size {
		if c.Thresholds.SizeTolerance < 0.0 || c.Thresholds.SizeTolerance >= 1.0 {
			return fmt.Errorf("size tolerance %.2f out of range [0.0, 1.0)", c.Thresholds.SizeTolerance)
		}
	}
	if c.Methods.Metadata && c.Thresholds.MetadataMinFields < 1 {
		return fmt.Errorf("metadata_min_fields must be at least 1")
	}
	if c.Thresholds.MinMethodMatches < 1 {
		return fmt.Errorf("min_method_matches must be at least 1")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	switch c.Strategy {
	case models.StrategyKeepLargest, models.StrategyKeepOldest, models.StrategyPreviewOnly:
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}

	switch c.Action {
	case models.ActionPreview:
	case models.ActionMove:
		if c.OutputDir == "" {
			return fmt.Errorf("output folder is required for the %s action", models.ActionMove)
		}
		if c.Strategy == models.StrategyPreviewOnly {
			return fmt.Errorf("the %s action needs a keeper strategy, not %s", models.ActionMove, models.StrategyPreviewOnly)
		}
	case models.ActionExport:
		if c.ReportOut == "" {
			return fmt.Errorf("report output path is required for the %s action", models.ActionExport)
		}
	default:
		return fmt.Errorf("unknown action %q", c.Action)
	}

	return nil
}
