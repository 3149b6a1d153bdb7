// Package group clusters files into duplicate groups. Matches are edges
// in an undirected graph over file identities; connected components give
// the groups, so transitively linked files group together even when they
// never matched each other directly.
package group

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"photodedup/internal/models"
	"photodedup/internal/progress"
	"photodedup/internal/score"
)

// Grouper builds duplicate groups from pairwise verdicts.
type Grouper struct {
	scorer   *score.Scorer
	workers  int
	logger   *zap.Logger
	reporter progress.Reporter
}

// Option configures a Grouper.
type Option func(*Grouper)

// WithWorkers sets the number of parallel comparison workers.
func WithWorkers(n int) Option {
	return func(g *Grouper) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithReporter sets a progress sink.
func WithReporter(r progress.Reporter) Option {
	return func(g *Grouper) {
		if r != nil {
			g.reporter = r
		}
	}
}

// New creates a Grouper.
func New(scorer *score.Scorer, logger *zap.Logger, opts ...Option) *Grouper {
	g := &Grouper{
		scorer:   scorer,
		workers:  8,
		logger:   logger,
		reporter: progress.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type edge struct {
	i, j    int
	verdict models.CombinedVerdict
}

// Group compares all candidate pairs and returns the duplicate groups in
// deterministic order, plus the number of comparisons performed. On
// cancellation it returns the groups built from the edges found so far
// together with the context error.
func (g *Grouper) Group(ctx context.Context, records []*models.FileRecord) ([]*models.DuplicateGroup, int64, error) {
	n := len(records)
	if n < 2 {
		return nil, 0, ctx.Err()
	}

	// Records arrive path-sorted from the engine; keep a sorted copy so
	// group membership ordering never depends on the caller.
	sorted := make([]*models.FileRecord, n)
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	uf := newUnionFind(n)
	var edges []edge

	// Fast path: files sharing a content hash are exact duplicates and can
	// be unioned without pairwise scoring. This cannot change results, the
	// content hash match short-circuits every other signal anyway.
	hashBuckets := make(map[string][]int)
	if g.scorer.MethodEnabled(models.MethodContentHash) {
		for i, rec := range sorted {
			if rec.Features != nil && rec.Features.ContentHash != "" {
				h := rec.Features.ContentHash
				hashBuckets[h] = append(hashBuckets[h], i)
			}
		}
	}
	for _, bucket := range hashBuckets {
		for k := 1; k < len(bucket); k++ {
			uf.union(bucket[0], bucket[k])
			edges = append(edges, edge{
				i: bucket[0],
				j: bucket[k],
				verdict: models.CombinedVerdict{
					Match:   true,
					Score:   1.0,
					Matched: []models.Method{models.MethodContentHash},
				},
			})
		}
	}

	pairEdges, comparisons, err := g.comparePairs(ctx, sorted)
	edges = append(edges, pairEdges...)
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].i != edges[b].i {
			return edges[a].i < edges[b].i
		}
		return edges[a].j < edges[b].j
	})

	g.reporter.Report(progress.Event{Phase: progress.PhaseGrouping, Status: "building groups"})

	for _, e := range edges {
		uf.union(e.i, e.j)
	}

	groups := buildGroups(sorted, uf, edges)

	g.logger.Info("grouping complete",
		zap.Int("files", n),
		zap.Int64("comparisons", comparisons),
		zap.Int("groups", len(groups)))

	return groups, comparisons, err
}

// comparePairs scores every candidate pair across a bounded worker pool,
// one row of the pair matrix per work unit. Pairs already covered by the
// content hash fast path are skipped.
func (g *Grouper) comparePairs(ctx context.Context, records []*models.FileRecord) ([]edge, int64, error) {
	n := len(records)
	var (
		mu          sync.Mutex
		edges       []edge
		wg          sync.WaitGroup
		comparisons int64
		rowsDone    int64
	)

	rows := make(chan int)
	go func() {
		defer close(rows)
		for i := 0; i < n-1; i++ {
			select {
			case rows <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	for w := 0; w < g.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rows {
				var local []edge
				a := records[i]
				for j := i + 1; j < n; j++ {
					b := records[j]
					if a.Features == nil || b.Features == nil {
						continue
					}
					if g.scorer.MethodEnabled(models.MethodContentHash) && sameContentHash(a, b) {
						continue // already unioned by the fast path
					}
					v := g.scorer.Compare(a, b)
					atomic.AddInt64(&comparisons, 1)
					if v.Match {
						local = append(local, edge{i: i, j: j, verdict: v})
					}
				}

				if len(local) > 0 {
					mu.Lock()
					edges = append(edges, local...)
					mu.Unlock()
				}

				done := atomic.AddInt64(&rowsDone, 1)
				g.reporter.Report(progress.Event{
					Phase:  progress.PhaseComparing,
					Done:   int(done),
					Total:  n - 1,
					Status: a.Path,
				})
			}
		}()
	}

	wg.Wait()

	return edges, comparisons, ctx.Err()
}

func sameContentHash(a, b *models.FileRecord) bool {
	return a.Features.ContentHash != "" && a.Features.ContentHash == b.Features.ContentHash
}

// buildGroups collects connected components of size >= 2, ordered by the
// path of their first member. Records are path-sorted, so member and
// group ordering are reproducible for a fixed input set.
func buildGroups(records []*models.FileRecord, uf *unionFind, edges []edge) []*models.DuplicateGroup {
	components := make(map[int][]int)
	for i := range records {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}

	componentEdges := make(map[int][]edge)
	for _, e := range edges {
		root := uf.find(e.i)
		componentEdges[root] = append(componentEdges[root], e)
	}

	var roots []int
	for root, members := range components {
		if len(members) >= 2 {
			roots = append(roots, root)
		}
	}
	// Members are ascending indices into the path-sorted slice, so the
	// first member index orders groups by path.
	sort.Slice(roots, func(a, b int) bool {
		return components[roots[a]][0] < components[roots[b]][0]
	})

	var groups []*models.DuplicateGroup
	for id, root := range roots {
		members := components[root]

		group := &models.DuplicateGroup{
			ID:    id + 1,
			Files: make([]*models.FileRecord, 0, len(members)),
		}

		var total, largest int64
		for _, idx := range members {
			rec := records[idx]
			group.Files = append(group.Files, rec)
			total += rec.Size
			if rec.Size > largest {
				largest = rec.Size
			}
		}
		group.SizeSavings = total - largest

		methodSeen := make(map[models.Method]bool)
		for _, e := range componentEdges[root] {
			if e.verdict.Score > group.Score {
				group.Score = e.verdict.Score
			}
			for _, m := range e.verdict.Matched {
				methodSeen[m] = true
			}
			group.Matches = append(group.Matches, models.PairMatch{
				PathA:   records[e.i].Path,
				PathB:   records[e.j].Path,
				Verdict: e.verdict,
			})
		}
		for _, m := range models.AllMethods {
			if methodSeen[m] {
				group.MatchedMethods = append(group.MatchedMethods, m)
			}
		}

		groups = append(groups, group)
	}

	return groups
}

// unionFind with path compression and union by rank.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x])
	}
	return uf.parent[x]
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}
