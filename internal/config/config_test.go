package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"photodedup/internal/models"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
	if cfg.Action != models.ActionPreview {
		t.Errorf("default action should be preview, got %s", cfg.Action)
	}
	if cfg.EnabledMethods().Count() != 5 {
		t.Errorf("expected all 5 methods enabled by default, got %d", cfg.EnabledMethods().Count())
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
methods:
  perceptual: false
thresholds:
  perceptual: 0.95
workers: 2
strategy: keep-oldest
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Methods.Perceptual {
		t.Error("perceptual should be disabled by the file")
	}
	if !cfg.Methods.ContentHash {
		t.Error("content_hash should keep its default")
	}
	if cfg.Thresholds.Perceptual != 0.95 {
		t.Errorf("perceptual threshold = %v, want 0.95", cfg.Thresholds.Perceptual)
	}
	if cfg.Thresholds.Filename != 0.8 {
		t.Errorf("filename threshold should keep its default, got %v", cfg.Thresholds.Filename)
	}
	if cfg.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Workers)
	}
	if cfg.Strategy != models.StrategyKeepOldest {
		t.Errorf("strategy = %s, want keep-oldest", cfg.Strategy)
	}
	if cfg.ExtractTimeout != 30*time.Second {
		t.Errorf("timeout should keep its default, got %v", cfg.ExtractTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("methods: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"no methods", func(c *Config) {
			c.Methods = MethodsConfig{}
		}, true},
		{"perceptual threshold too low", func(c *Config) {
			c.Thresholds.Perceptual = 0.4
		}, true},
		{"perceptual threshold too high", func(c *Config) {
			c.Thresholds.Perceptual = 1.1
		}, true},
		{"low threshold ok when perceptual disabled", func(c *Config) {
			c.Methods.Perceptual = false
			c.Thresholds.Perceptual = 0.1
		}, false},
		{"filename threshold out of range", func(c *Config) {
			c.Thresholds.Filename = 1.5
		}, true},
		{"size tolerance at one", func(c *Config) {
			c.Thresholds.SizeTolerance = 1.0
		}, true},
		{"metadata min fields zero", func(c *Config) {
			c.Thresholds.MetadataMinFields = 0
		}, true},
		{"min method matches zero", func(c *Config) {
			c.Thresholds.MinMethodMatches = 0
		}, true},
		{"no workers", func(c *Config) {
			c.Workers = 0
		}, true},
		{"unknown strategy", func(c *Config) {
			c.Strategy = "keep-shiniest"
		}, true},
		{"unknown action", func(c *Config) {
			c.Action = "shred"
		}, true},
		{"move without output dir", func(c *Config) {
			c.Action = models.ActionMove
		}, true},
		{"move with preview-only strategy", func(c *Config) {
			c.Action = models.ActionMove
			c.OutputDir = "/tmp/out"
			c.Strategy = models.StrategyPreviewOnly
		}, true},
		{"move fully specified", func(c *Config) {
			c.Action = models.ActionMove
			c.OutputDir = "/tmp/out"
		}, false},
		{"export without report path", func(c *Config) {
			c.Action = models.ActionExport
		}, true},
		{"export with report path", func(c *Config) {
			c.Action = models.ActionExport
			c.ReportOut = "report.json"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
