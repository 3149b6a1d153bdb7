package engine

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"photodedup/internal/config"
	"photodedup/internal/models"
	"photodedup/internal/storage"
)

func writePNG(t *testing.T, path string, seed uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*8) + seed,
				G: uint8(y * 8),
				B: seed,
				A: 255,
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workers = 2
	cfg.CachePath = ""
	return cfg
}

// writeNoisePNG encodes pseudo-random pixels. Noise barely compresses
// and shares no structure with the gradient images, so it stays clear of
// every detection method.
func writeNoisePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	state := uint32(12345)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			state = state*1664525 + 1013904223
			img.Set(x, y, color.RGBA{
				R: uint8(state >> 24),
				G: uint8(state >> 16),
				B: uint8(state >> 8),
				A: 255,
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// duplicateSet writes two identical images and one distinct image.
func duplicateSet(t *testing.T, dir string) {
	t.Helper()
	writePNG(t, filepath.Join(dir, "a.png"), 0)
	writePNG(t, filepath.Join(dir, "a_copy.png"), 0)
	writeNoisePNG(t, filepath.Join(dir, "other.png"))
}

func TestRun_FindsExactDuplicates(t *testing.T) {
	dir := t.TempDir()
	duplicateSet(t, dir)

	eng := New(testConfig(), zap.NewNop())
	res, err := eng.Run(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.FilesScanned != 3 || res.FilesAnalyzed != 3 {
		t.Errorf("scanned/analyzed = %d/%d, want 3/3", res.FilesScanned, res.FilesAnalyzed)
	}
	if len(res.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(res.Groups))
	}
	group := res.Groups[0]
	if len(group.Files) != 2 {
		t.Errorf("expected 2 files in the group, got %d", len(group.Files))
	}
	if group.Score != 1.0 {
		t.Errorf("expected score 1.0 for exact duplicates, got %v", group.Score)
	}
	if len(res.Plans) != 1 || res.Plans[0].Keeper == nil {
		t.Fatal("expected a keeper plan for the group")
	}
	if res.Cancelled {
		t.Error("run should not be marked cancelled")
	}
	if res.Elapsed <= 0 {
		t.Error("expected a positive elapsed duration")
	}

	// Preview is the default action: nothing moves.
	for _, name := range []string{"a.png", "a_copy.png", "other.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("file %s was touched by a preview run: %v", name, err)
		}
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Methods = config.MethodsConfig{}

	eng := New(cfg, zap.NewNop())
	if _, err := eng.Run(context.Background(), []string{t.TempDir()}); err == nil {
		t.Error("expected a validation error before any work")
	}
}

func TestRun_UnreadableFilesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	duplicateSet(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	eng := New(testConfig(), zap.NewNop())
	res, err := eng.Run(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("a corrupt file must not fail the run: %v", err)
	}

	if res.FilesScanned != 4 {
		t.Errorf("scanned = %d, want 4", res.FilesScanned)
	}
	if res.FilesAnalyzed != 3 {
		t.Errorf("analyzed = %d, want 3", res.FilesAnalyzed)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Path != filepath.Join(dir, "broken.png") {
		t.Errorf("expected broken.png in the skipped list, got %+v", res.Skipped)
	}
	if res.Skipped[0].Reason == "" {
		t.Error("expected a reason on the skipped entry")
	}
	if len(res.Groups) != 1 {
		t.Errorf("expected the clean duplicates still grouped, got %d groups", len(res.Groups))
	}
}

func TestRun_MoveAction(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "organized")
	duplicateSet(t, dir)

	cfg := testConfig()
	cfg.Action = models.ActionMove
	cfg.OutputDir = out

	eng := New(cfg, zap.NewNop())
	res, err := eng.Run(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "other.png")); err != nil {
		t.Error("the non-duplicate must stay in place")
	}

	var moved int
	for _, op := range res.Operations {
		if op.Status == models.OpMoved {
			moved++
		}
	}
	if moved != 2 {
		t.Errorf("expected 2 moved files (keeper + duplicate), got %d", moved)
	}

	if entries, _ := os.ReadDir(filepath.Join(out, "original")); len(entries) != 1 {
		t.Errorf("expected 1 file in original/, got %d", len(entries))
	}
	if entries, _ := os.ReadDir(filepath.Join(out, "duplicated")); len(entries) != 1 {
		t.Errorf("expected 1 file in duplicated/, got %d", len(entries))
	}
}

func TestRun_ExportAction(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(t.TempDir(), "report.json")
	duplicateSet(t, dir)

	cfg := testConfig()
	cfg.Action = models.ActionExport
	cfg.ReportOut = report

	eng := New(cfg, zap.NewNop())
	if _, err := eng.Run(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat(report); err != nil {
		t.Errorf("report not written: %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	duplicateSet(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := New(testConfig(), zap.NewNop())
	res, err := eng.Run(ctx, []string{dir})
	if err != nil {
		t.Fatalf("cancellation must yield a partial result, not an error: %v", err)
	}
	if !res.Cancelled {
		t.Error("expected the result to be marked cancelled")
	}
}

func TestRun_Deterministic(t *testing.T) {
	dir := t.TempDir()
	duplicateSet(t, dir)
	writePNG(t, filepath.Join(dir, "b.png"), 100)
	writePNG(t, filepath.Join(dir, "b_copy.png"), 100)

	eng := New(testConfig(), zap.NewNop())
	base, err := eng.Run(context.Background(), []string{dir})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		cfg := testConfig()
		cfg.Workers = 1 + i
		res, err := New(cfg, zap.NewNop()).Run(context.Background(), []string{dir})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Groups) != len(base.Groups) {
			t.Fatalf("run %d: %d groups, want %d", i, len(res.Groups), len(base.Groups))
		}
		for gi := range res.Groups {
			if res.Groups[gi].ID != base.Groups[gi].ID {
				t.Errorf("run %d: group %d ID mismatch", i, gi)
			}
			for fi := range res.Groups[gi].Files {
				if res.Groups[gi].Files[fi].Path != base.Groups[gi].Files[fi].Path {
					t.Errorf("run %d: group %d member %d differs", i, gi, fi)
				}
			}
			if res.Plans[gi].Keeper.Path != base.Plans[gi].Keeper.Path {
				t.Errorf("run %d: keeper differs for group %d", i, gi)
			}
		}
	}
}

func TestRun_WithCache(t *testing.T) {
	dir := t.TempDir()
	duplicateSet(t, dir)

	cache, err := storage.Open(filepath.Join(t.TempDir(), "features.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	eng := New(testConfig(), zap.NewNop(), WithCache(cache))
	first, err := eng.Run(context.Background(), []string{dir})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := cache.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 3 {
		t.Errorf("expected 3 cached entries, got %d", stats.Entries)
	}
	if stats.Runs != 1 {
		t.Errorf("expected 1 recorded run, got %d", stats.Runs)
	}

	// A second run served from the cache must agree with the first.
	second, err := eng.Run(context.Background(), []string{dir})
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Groups) != len(first.Groups) {
		t.Errorf("cached run found %d groups, want %d", len(second.Groups), len(first.Groups))
	}
}
