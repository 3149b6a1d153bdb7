// Package plan designates the keeper within each duplicate group. No
// file I/O happens here; plans are immutable once produced.
package plan

import (
	"fmt"
	"sort"
	"time"

	"photodedup/internal/models"
)

// Planner turns duplicate groups into action plans under one strategy.
type Planner struct {
	strategy models.Strategy
}

// New creates a Planner.
func New(strategy models.Strategy) *Planner {
	return &Planner{strategy: strategy}
}

// PlanAll builds one plan per group, in group order.
func (p *Planner) PlanAll(groups []*models.DuplicateGroup) []*models.ActionPlan {
	plans := make([]*models.ActionPlan, 0, len(groups))
	for _, g := range groups {
		plans = append(plans, p.Plan(g))
	}
	return plans
}

// Plan designates exactly one keeper for the group, or none under the
// preview-only strategy, which reports the group composition for user
// review without a keeper/duplicate distinction.
func (p *Planner) Plan(g *models.DuplicateGroup) *models.ActionPlan {
	if p.strategy == models.StrategyPreviewOnly {
		return &models.ActionPlan{
			GroupID:   g.ID,
			Strategy:  p.strategy,
			Rationale: fmt.Sprintf("preview only: %d files, no keeper designated", len(g.Files)),
		}
	}

	sorted := make([]*models.FileRecord, len(g.Files))
	copy(sorted, g.Files)
	sort.Slice(sorted, func(i, j int) bool {
		return p.better(sorted[i], sorted[j])
	})

	keeper := sorted[0]
	plan := &models.ActionPlan{
		GroupID:    g.ID,
		Strategy:   p.strategy,
		Keeper:     keeper,
		Duplicates: sorted[1:],
	}

	switch p.strategy {
	case models.StrategyKeepLargest:
		plan.Rationale = fmt.Sprintf("kept largest (%d bytes)", keeper.Size)
	case models.StrategyKeepOldest:
		plan.Rationale = fmt.Sprintf("kept oldest (%s)", keeper.ModTime.Format(time.RFC3339))
	}

	return plan
}

// better orders candidates so the keeper sorts first. Ties fall through
// the chain ending at path order, which makes the selection fully
// deterministic for a fixed input set.
func (p *Planner) better(a, b *models.FileRecord) bool {
	switch p.strategy {
	case models.StrategyKeepLargest:
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.Before(b.ModTime)
		}
	case models.StrategyKeepOldest:
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.Before(b.ModTime)
		}
		if a.Size != b.Size {
			return a.Size > b.Size
		}
	}
	return a.Path < b.Path
}
