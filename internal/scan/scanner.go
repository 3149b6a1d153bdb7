// Package scan discovers candidate image files and turns them into
// FileRecords for the run.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"photodedup/internal/models"
	"photodedup/internal/progress"
)

// Scanner walks folders and collects FileRecords for supported images.
type Scanner struct {
	logger   *zap.Logger
	reporter progress.Reporter
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithReporter sets a progress sink.
func WithReporter(r progress.Reporter) Option {
	return func(s *Scanner) {
		if r != nil {
			s.reporter = r
		}
	}
}

// New creates a Scanner.
func New(logger *zap.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		logger:   logger,
		reporter: progress.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsSupportedImage checks whether a path has a recognized image extension.
func IsSupportedImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif", ".ico":
		return true
	default:
		return false
	}
}

// Collect gathers FileRecords under the given roots. Each root may be a
// folder (walked recursively) or an explicit file. Unreadable entries are
// skipped; records are returned sorted by path so downstream stages are
// deterministic.
func (s *Scanner) Collect(ctx context.Context, roots []string) ([]*models.FileRecord, error) {
	var records []*models.FileRecord
	seen := make(map[string]bool)

	add := func(path string, info os.FileInfo) {
		if seen[path] {
			return
		}
		seen[path] = true
		records = append(records, &models.FileRecord{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("path not found: %w", err)
		}

		if !info.IsDir() {
			if IsSupportedImage(abs) {
				add(abs, info)
			}
			continue
		}

		walkErr := filepath.Walk(abs, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				s.logger.Debug("skipping unreadable entry", zap.String("path", path), zap.Error(err))
				return nil
			}
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if fi.IsDir() {
				return nil
			}
			if IsSupportedImage(path) {
				add(path, fi)
				s.reporter.Report(progress.Event{
					Phase:  progress.PhaseScanning,
					Done:   len(records),
					Status: path,
				})
			}
			return nil
		})
		if walkErr != nil {
			if walkErr == ctx.Err() {
				return records, walkErr
			}
			return nil, fmt.Errorf("failed to walk folder: %w", walkErr)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})

	s.logger.Info("scan complete",
		zap.Int("roots", len(roots)),
		zap.Int("files", len(records)))

	return records, nil
}
