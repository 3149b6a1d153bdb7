package score

import (
	"testing"
	"time"

	"photodedup/internal/models"
)

func allMethods() models.MethodSet {
	set := models.MethodSet{}
	for _, m := range models.AllMethods {
		set[m] = true
	}
	return set
}

func defaultParams() Params {
	return Params{
		Methods:             allMethods(),
		PerceptualThreshold: 0.9,
		FilenameThreshold:   0.8,
		SizeTolerance:       0.02,
		MetadataMinFields:   3,
		MinMethodMatches:    1,
	}
}

func record(path string, size int64, fs *models.FeatureSet) *models.FileRecord {
	return &models.FileRecord{
		Path:     path,
		Size:     size,
		ModTime:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Features: fs,
	}
}

func TestCompare_ContentHashShortCircuit(t *testing.T) {
	s := New(defaultParams())

	// Identical content but wildly different everything else. The content
	// hash alone must settle it at score 1.0.
	a := record("a.jpg", 1000, &models.FeatureSet{
		ContentHash:      "abc",
		PerceptualHashes: []uint64{0x0000000000000000, 0, 0},
		NormalizedName:   "vacation",
	})
	b := record("b.jpg", 999999, &models.FeatureSet{
		ContentHash:      "abc",
		PerceptualHashes: []uint64{0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF},
		NormalizedName:   "zzzzzz",
	})

	v := s.Compare(a, b)
	if !v.Match {
		t.Fatal("expected a match on identical content hashes")
	}
	if v.Score != 1.0 {
		t.Errorf("expected score 1.0, got %v", v.Score)
	}
	if len(v.Matched) != 1 || v.Matched[0] != models.MethodContentHash {
		t.Errorf("expected only content-hash in matched methods, got %v", v.Matched)
	}
}

func TestCompare_ContentHashMismatchDoesNotBlock(t *testing.T) {
	s := New(defaultParams())

	// Different content hashes, but perceptually identical. The hash
	// mismatch must not veto the perceptual match.
	a := record("a.jpg", 1000, &models.FeatureSet{
		ContentHash:      "abc",
		PerceptualHashes: []uint64{42, 42, 42},
	})
	b := record("b.jpg", 1000, &models.FeatureSet{
		ContentHash:      "def",
		PerceptualHashes: []uint64{42, 42, 42},
	})

	v := s.Compare(a, b)
	if !v.Match {
		t.Fatal("expected a perceptual match despite differing content hashes")
	}
	found := false
	for _, m := range v.Matched {
		if m == models.MethodPerceptual {
			found = true
		}
		if m == models.MethodContentHash {
			t.Error("content-hash must not appear as matched for differing digests")
		}
	}
	if !found {
		t.Errorf("expected perceptual in matched methods, got %v", v.Matched)
	}
}

func TestCompare_MissingFeatureIsNotAMismatch(t *testing.T) {
	params := defaultParams()
	params.MinMethodMatches = 1
	s := New(params)

	// No perceptual hashes on either side; only size participates.
	a := record("a.jpg", 1000, &models.FeatureSet{})
	b := record("b.jpg", 1000, &models.FeatureSet{})

	v := s.Compare(a, b)
	if !v.Match {
		t.Fatal("expected size match when other methods are non-participating")
	}
	for _, pv := range v.Verdicts {
		if pv.Method == models.MethodPerceptual || pv.Method == models.MethodFilename {
			t.Errorf("method %s should not have produced a verdict", pv.Method)
		}
	}
}

func TestCompare_MinMethodMatches(t *testing.T) {
	params := defaultParams()
	params.MinMethodMatches = 2
	s := New(params)

	// Only size agrees: one matching method, below the required two.
	a := record("holiday.jpg", 1000, &models.FeatureSet{NormalizedName: "holiday"})
	b := record("zebra.jpg", 1000, &models.FeatureSet{NormalizedName: "zebra"})

	v := s.Compare(a, b)
	if v.Match {
		t.Error("expected no combined match with a single agreeing method")
	}

	// Size and filename agree: two methods, meets the bar.
	c := record("holiday2.jpg", 1000, &models.FeatureSet{NormalizedName: "holiday2"})
	v = s.Compare(a, c)
	if !v.Match {
		t.Errorf("expected a combined match with two agreeing methods, matched=%v", v.Matched)
	}
}

func TestCompare_DisabledMethodIgnored(t *testing.T) {
	params := defaultParams()
	params.Methods = models.MethodSet{models.MethodPerceptual: true}
	s := New(params)

	a := record("a.jpg", 1000, &models.FeatureSet{
		ContentHash:      "same",
		PerceptualHashes: []uint64{0, 0, 0},
	})
	b := record("b.jpg", 1000, &models.FeatureSet{
		ContentHash:      "same",
		PerceptualHashes: []uint64{0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF},
	})

	v := s.Compare(a, b)
	if v.Match {
		t.Error("expected no match with content-hash disabled and dissimilar perceptual hashes")
	}
}

func TestComparePerceptual_Threshold(t *testing.T) {
	tests := []struct {
		name      string
		hashA     uint64
		hashB     uint64
		threshold float64
		match     bool
	}{
		{"identical", 0xABCD, 0xABCD, 0.9, true},
		{"six bits apart at 0.90", 0, 0x3F, 0.90, true},         // 1 - 6/64 = 0.906
		{"seven bits apart at 0.90", 0, 0x7F, 0.90, false},      // 1 - 7/64 = 0.891
		{"six bits apart at 0.95", 0, 0x3F, 0.95, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := defaultParams()
			params.Methods = models.MethodSet{models.MethodPerceptual: true}
			params.PerceptualThreshold = tt.threshold
			s := New(params)

			a := record("a.jpg", 1, &models.FeatureSet{PerceptualHashes: []uint64{tt.hashA}})
			b := record("b.jpg", 1, &models.FeatureSet{PerceptualHashes: []uint64{tt.hashB}})

			v := s.Compare(a, b)
			if v.Match != tt.match {
				t.Errorf("match = %v, want %v (score %v)", v.Match, tt.match, v.Score)
			}
		})
	}
}

func TestCompareFilename_CopySuffix(t *testing.T) {
	params := defaultParams()
	params.Methods = models.MethodSet{models.MethodFilename: true}
	s := New(params)

	tests := []struct {
		name  string
		a, b  string
		match bool
	}{
		{"identical stems", "img001", "img001", true},
		{"copy suffix", "vacation", "vacationcopy", true},
		{"numbered copy", "vacation", "vacation2", true},
		{"both suffixed", "vacationcopy", "vacation3", true},
		{"unrelated", "sunset", "invoice", false},
		{"short base not boosted", "a", "a7", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := record("a.jpg", 1, &models.FeatureSet{NormalizedName: tt.a})
			b := record("b.jpg", 1, &models.FeatureSet{NormalizedName: tt.b})

			v := s.Compare(a, b)
			if v.Match != tt.match {
				t.Errorf("%q vs %q: match = %v, want %v (score %v)", tt.a, tt.b, v.Match, tt.match, v.Score)
			}
		})
	}
}

func TestCompareSize_Tolerance(t *testing.T) {
	params := defaultParams()
	params.Methods = models.MethodSet{models.MethodSize: true}
	params.SizeTolerance = 0.02
	s := New(params)

	tests := []struct {
		name  string
		a, b  int64
		match bool
	}{
		{"equal", 1000, 1000, true},
		{"within tolerance", 1000, 985, true}, // diff 1.5%
		{"just outside", 1000, 975, false},    // diff 2.5%
		{"far apart", 1000, 500, false},
		{"order independent", 985, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := record("a.jpg", tt.a, &models.FeatureSet{})
			b := record("b.jpg", tt.b, &models.FeatureSet{})

			v := s.Compare(a, b)
			if v.Match != tt.match {
				t.Errorf("sizes %d vs %d: match = %v, want %v", tt.a, tt.b, v.Match, tt.match)
			}
		})
	}
}

func TestCompareMetadata_FieldAgreement(t *testing.T) {
	params := defaultParams()
	params.Methods = models.MethodSet{models.MethodMetadata: true}
	params.MetadataMinFields = 3
	s := New(params)

	full := &models.ExifSummary{
		CameraMake:  "Canon",
		CameraModel: "EOS R5",
		Width:       8192,
		Height:      5464,
		TakenAt:     "2024-06-01T12:00:00Z",
	}

	// Five agreeing fields.
	a := record("a.jpg", 1, &models.FeatureSet{Exif: full})
	b := record("b.jpg", 1, &models.FeatureSet{Exif: full})
	if v := s.Compare(a, b); !v.Match {
		t.Errorf("expected metadata match with 5 agreeing fields, score %v", v.Score)
	}

	// Only make and model agree: two fields, below the minimum.
	c := record("c.jpg", 1, &models.FeatureSet{Exif: &models.ExifSummary{
		CameraMake:  "Canon",
		CameraModel: "EOS R5",
		Width:       100,
		Height:      100,
		TakenAt:     "2020-01-01T00:00:00Z",
	}})
	if v := s.Compare(a, c); v.Match {
		t.Errorf("expected no metadata match with 2 agreeing fields, score %v", v.Score)
	}

	// One side has no EXIF at all: non-participating.
	d := record("d.jpg", 1, &models.FeatureSet{})
	if v := s.Compare(a, d); len(v.Verdicts) != 0 {
		t.Errorf("expected no verdicts when one side lacks EXIF, got %v", v.Verdicts)
	}
}

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		a, b uint64
		want int
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0, 0xFFFFFFFFFFFFFFFF, 64},
		{0b1010, 0b0101, 4},
	}
	for _, tt := range tests {
		if got := HammingDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("HammingDistance(%#x, %#x) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLevenshteinRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "abc", 1.0},
		{"abc", "abd", 1.0 - 1.0/3.0},
		{"abc", "", 0.0},
		{"kitten", "sitting", 1.0 - 3.0/7.0},
	}
	for _, tt := range tests {
		got := levenshteinRatio(tt.a, tt.b)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("levenshteinRatio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
