// Package engine orchestrates a deduplication run: scan, extract,
// compare, group, plan, execute. Extraction and comparison fan out over
// bounded worker pools; grouping and planning are single-threaded
// aggregation over the parallel stages' outputs.
package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"photodedup/internal/action"
	"photodedup/internal/config"
	"photodedup/internal/extract"
	"photodedup/internal/group"
	"photodedup/internal/models"
	"photodedup/internal/plan"
	"photodedup/internal/progress"
	"photodedup/internal/scan"
	"photodedup/internal/score"
	"photodedup/internal/storage"
)

// Engine runs the full deduplication pipeline.
type Engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	reporter progress.Reporter
	cache    *storage.Cache
}

// Option configures an Engine.
type Option func(*Engine)

// WithReporter sets the progress sink shared by all stages.
func WithReporter(r progress.Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporter = r
		}
	}
}

// WithCache attaches a feature cache.
func WithCache(c *storage.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// New creates an Engine.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		reporter: progress.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run scans the given roots and executes the configured action. The run
// only fails outright for configuration problems or an unusable output
// location; per-file trouble is recorded in the result and the run
// continues. On cancellation it returns a partial result marked
// cancelled, leaving completed file operations in place.
func (e *Engine) Run(ctx context.Context, roots []string) (*models.RunResult, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	res := &models.RunResult{}

	scanner := scan.New(e.logger, scan.WithReporter(e.reporter))
	records, err := scanner.Collect(ctx, roots)
	res.FilesScanned = len(records)
	if err != nil {
		if ctx.Err() != nil {
			return e.finish(ctx, res, roots, start), nil
		}
		return nil, err
	}

	analyzed := e.extractAll(ctx, records, res)
	res.FilesAnalyzed = len(analyzed)
	if ctx.Err() != nil {
		return e.finish(ctx, res, roots, start), nil
	}

	scorer := score.New(score.Params{
		Methods:             e.cfg.EnabledMethods(),
		PerceptualThreshold: e.cfg.Thresholds.Perceptual,
		FilenameThreshold:   e.cfg.Thresholds.Filename,
		SizeTolerance:       e.cfg.Thresholds.SizeTolerance,
		MetadataMinFields:   e.cfg.Thresholds.MetadataMinFields,
		MinMethodMatches:    e.cfg.Thresholds.MinMethodMatches,
	})
	grouper := group.New(scorer, e.logger,
		group.WithWorkers(e.cfg.Workers),
		group.WithReporter(e.reporter))

	groups, comparisons, gerr := grouper.Group(ctx, analyzed)
	res.Groups = groups
	res.Comparisons = comparisons
	for _, g := range groups {
		res.PotentialSavings += g.SizeSavings
	}
	if gerr != nil {
		return e.finish(ctx, res, roots, start), nil
	}

	res.Plans = plan.New(e.cfg.Strategy).PlanAll(groups)

	executor := action.New(e.cfg.Action, e.logger,
		action.WithOutputDir(e.cfg.OutputDir),
		action.WithReportPath(e.cfg.ReportOut),
		action.WithReporter(e.reporter))

	res.Elapsed = time.Since(start)
	if xerr := executor.Execute(ctx, res); xerr != nil {
		if ctx.Err() != nil {
			return e.finish(ctx, res, roots, start), nil
		}
		e.finish(ctx, res, roots, start)
		return res, xerr
	}

	return e.finish(ctx, res, roots, start), nil
}

// extractAll computes FeatureSets across a bounded worker pool. Files
// whose extraction fails are recorded as skipped and excluded from
// comparison; the run continues.
func (e *Engine) extractAll(ctx context.Context, records []*models.FileRecord, res *models.RunResult) []*models.FileRecord {
	if len(records) == 0 {
		return nil
	}

	opts := []extract.Option{extract.WithTimeout(e.cfg.ExtractTimeout)}
	if e.cache != nil {
		opts = append(opts, extract.WithCache(e.cache))
	}
	extractor := extract.New(e.cfg.EnabledMethods(), e.logger, opts...)

	var (
		mu       sync.Mutex
		analyzed []*models.FileRecord
		wg       sync.WaitGroup
		done     int64
		total    = len(records)
	)

	work := make(chan *models.FileRecord, len(records))
	for _, rec := range records {
		work <- rec
	}
	close(work)

	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				if ctx.Err() != nil {
					return
				}

				fs, err := extractor.ExtractWithTimeout(rec)
				mu.Lock()
				if err != nil {
					res.Skipped = append(res.Skipped, models.FileIssue{
						Path:   rec.Path,
						Reason: err.Error(),
					})
				} else {
					rec.Features = fs
					analyzed = append(analyzed, rec)
				}
				mu.Unlock()

				n := atomic.AddInt64(&done, 1)
				e.reporter.Report(progress.Event{
					Phase:  progress.PhaseExtracting,
					Done:   int(n),
					Total:  total,
					Status: rec.Path,
				})
			}
		}()
	}

	wg.Wait()

	// Workers finish out of order; restore path order so downstream
	// stages are deterministic.
	sort.Slice(analyzed, func(i, j int) bool { return analyzed[i].Path < analyzed[j].Path })
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].Path < res.Skipped[j].Path })

	e.logger.Info("extraction complete",
		zap.Int("analyzed", len(analyzed)),
		zap.Int("skipped", len(res.Skipped)))

	return analyzed
}

func (e *Engine) finish(ctx context.Context, res *models.RunResult, roots []string, start time.Time) *models.RunResult {
	res.Elapsed = time.Since(start)
	res.Cancelled = ctx.Err() != nil

	if e.cache != nil {
		if err := e.cache.RecordRun(roots, res); err != nil {
			e.logger.Warn("failed to record run history", zap.Error(err))
		}
	}

	if res.Cancelled {
		e.logger.Info("run cancelled",
			zap.Int("groups", len(res.Groups)),
			zap.Duration("elapsed", res.Elapsed))
	} else {
		e.logger.Info("run complete",
			zap.Int("files", res.FilesScanned),
			zap.Int("groups", len(res.Groups)),
			zap.Int("duplicates", res.TotalDuplicates()),
			zap.Duration("elapsed", res.Elapsed))
	}

	return res
}
