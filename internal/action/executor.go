// Package action carries out or simulates the per-group plans. The
// executor never deletes a file; removal is always relocation, so every
// outcome is recoverable.
package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"photodedup/internal/fileutil"
	"photodedup/internal/models"
	"photodedup/internal/progress"
)

// ErrMoveFailed marks a per-file move failure. The run continues; the
// outcome is recorded against the file.
var ErrMoveFailed = errors.New("move failed")

// Executor applies an action mode to a set of plans.
type Executor struct {
	mode       models.ActionMode
	outputDir  string
	reportPath string
	logger     *zap.Logger
	reporter   progress.Reporter
}

// Option configures an Executor.
type Option func(*Executor)

// WithOutputDir sets the destination folder for the move action.
func WithOutputDir(dir string) Option {
	return func(e *Executor) {
		e.outputDir = dir
	}
}

// WithReportPath sets the destination file for the export-report action.
func WithReportPath(path string) Option {
	return func(e *Executor) {
		e.reportPath = path
	}
}

// WithReporter sets a progress sink.
func WithReporter(r progress.Reporter) Option {
	return func(e *Executor) {
		if r != nil {
			e.reporter = r
		}
	}
}

// New creates an Executor.
func New(mode models.ActionMode, logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		mode:     mode,
		logger:   logger,
		reporter: progress.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the configured action over res.Plans, appending one
// Operation per file to res.Operations. Individual failures never abort
// the remaining operations. On cancellation it stops between operations
// and returns the context error; completed moves stay in place.
func (e *Executor) Execute(ctx context.Context, res *models.RunResult) error {
	switch e.mode {
	case models.ActionPreview:
		return e.preview(res)
	case models.ActionMove:
		return e.move(ctx, res)
	case models.ActionExport:
		return e.export(res)
	default:
		return fmt.Errorf("unknown action %q", e.mode)
	}
}

// preview emits simulated operations and performs zero filesystem
// mutation. This is the default safe mode.
func (e *Executor) preview(res *models.RunResult) error {
	for _, plan := range res.Plans {
		if plan.Keeper == nil {
			for _, f := range groupFiles(res, plan.GroupID) {
				res.Operations = append(res.Operations, models.Operation{
					Path:   f.Path,
					Status: models.OpSimulated,
					Reason: "preview only, no keeper designated",
				})
			}
			continue
		}

		res.Operations = append(res.Operations, models.Operation{
			Path:   plan.Keeper.Path,
			Role:   "keeper",
			Status: models.OpSimulated,
			Reason: "preview",
		})
		for _, dup := range plan.Duplicates {
			res.Operations = append(res.Operations, models.Operation{
				Path:   dup.Path,
				Role:   "duplicate",
				Status: models.OpSimulated,
				Reason: "preview",
			})
		}
	}
	return nil
}

// move relocates each keeper into <output>/original and each duplicate
// into <output>/duplicated, appending numeric suffixes on collision so
// nothing is ever overwritten.
func (e *Executor) move(ctx context.Context, res *models.RunResult) error {
	originalDir := filepath.Join(e.outputDir, "original")
	duplicatedDir := filepath.Join(e.outputDir, "duplicated")
	for _, dir := range []string{originalDir, duplicatedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create organized folder %s: %w", dir, err)
		}
	}

	total := 0
	for _, plan := range res.Plans {
		total += 1 + len(plan.Duplicates)
	}

	done := 0
	for _, plan := range res.Plans {
		if err := ctx.Err(); err != nil {
			return err
		}

		done++
		e.moveOne(res, plan.Keeper, "keeper", originalDir)
		e.reporter.Report(progress.Event{
			Phase:  progress.PhaseExecuting,
			Done:   done,
			Total:  total,
			Status: plan.Keeper.Path,
		})

		for _, dup := range plan.Duplicates {
			if err := ctx.Err(); err != nil {
				return err
			}
			done++
			e.moveOne(res, dup, "duplicate", duplicatedDir)
			e.reporter.Report(progress.Event{
				Phase:  progress.PhaseExecuting,
				Done:   done,
				Total:  total,
				Status: dup.Path,
			})
		}
	}

	return nil
}

func (e *Executor) moveOne(res *models.RunResult, rec *models.FileRecord, role, destDir string) {
	if _, err := os.Stat(rec.Path); err != nil {
		res.Operations = append(res.Operations, models.Operation{
			Path:   rec.Path,
			Role:   role,
			Status: models.OpSkipped,
			Reason: "source file missing",
		})
		return
	}

	dest, err := fileutil.MoveFile(rec.Path, destDir)
	if err != nil {
		e.logger.Warn("move failed", zap.String("path", rec.Path), zap.Error(err))
		res.Operations = append(res.Operations, models.Operation{
			Path:   rec.Path,
			Role:   role,
			Status: models.OpFailed,
			Reason: fmt.Sprintf("%v: %v", ErrMoveFailed, err),
		})
		return
	}

	res.Operations = append(res.Operations, models.Operation{
		Path:   rec.Path,
		Dest:   dest,
		Role:   role,
		Status: models.OpMoved,
	})
}

// export serializes groups, plans and similarity explanations to a JSON
// document without touching the scanned files.
func (e *Executor) export(res *models.RunResult) error {
	if err := WriteReport(res, e.reportPath); err != nil {
		res.Operations = append(res.Operations, models.Operation{
			Path:   e.reportPath,
			Status: models.OpFailed,
			Reason: err.Error(),
		})
		return err
	}

	res.Operations = append(res.Operations, models.Operation{
		Path:   e.reportPath,
		Status: models.OpWritten,
	})
	return nil
}

// Report is the exported document shape.
type Report struct {
	GeneratedAt      time.Time                `json:"generated_at"`
	FilesScanned     int                      `json:"files_scanned"`
	FilesAnalyzed    int                      `json:"files_analyzed"`
	GroupCount       int                      `json:"group_count"`
	TotalDuplicates  int                      `json:"total_duplicates"`
	PotentialSavings int64                    `json:"potential_savings_bytes"`
	Comparisons      int64                    `json:"comparisons"`
	ElapsedSeconds   float64                  `json:"elapsed_seconds"`
	Cancelled        bool                     `json:"cancelled"`
	Groups           []*models.DuplicateGroup `json:"groups"`
	Plans            []*models.ActionPlan     `json:"plans"`
	Skipped          []models.FileIssue       `json:"skipped,omitempty"`
	Operations       []models.Operation       `json:"operations,omitempty"`
}

// NewReport builds the report document for a run result.
func NewReport(res *models.RunResult) *Report {
	return &Report{
		GeneratedAt:      time.Now(),
		FilesScanned:     res.FilesScanned,
		FilesAnalyzed:    res.FilesAnalyzed,
		GroupCount:       len(res.Groups),
		TotalDuplicates:  res.TotalDuplicates(),
		PotentialSavings: res.PotentialSavings,
		Comparisons:      res.Comparisons,
		ElapsedSeconds:   res.Elapsed.Seconds(),
		Cancelled:        res.Cancelled,
		Groups:           res.Groups,
		Plans:            res.Plans,
		Skipped:          res.Skipped,
		Operations:       res.Operations,
	}
}

// WriteReport writes the structured report for a run result to path.
func WriteReport(res *models.RunResult, path string) error {
	data, err := json.MarshalIndent(NewReport(res), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func groupFiles(res *models.RunResult, groupID int) []*models.FileRecord {
	for _, g := range res.Groups {
		if g.ID == groupID {
			return g.Files
		}
	}
	return nil
}
