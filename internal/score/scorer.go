// Package score compares FeatureSets pairwise under each enabled method
// and combines the per-method verdicts.
package score

import (
	"regexp"

	"photodedup/internal/models"
)

// hashBits is the width of each perceptual hash variant.
const hashBits = 64

// Params holds the enabled methods with their thresholds and the
// combination policy.
type Params struct {
	Methods             models.MethodSet
	PerceptualThreshold float64
	FilenameThreshold   float64
	SizeTolerance       float64
	MetadataMinFields   int
	MinMethodMatches    int
}

// Scorer produces pair verdicts. Safe for concurrent use.
type Scorer struct {
	params Params
}

// New creates a Scorer.
func New(params Params) *Scorer {
	return &Scorer{params: params}
}

// MethodEnabled reports whether a method participates in comparisons.
func (s *Scorer) MethodEnabled(m models.Method) bool {
	return s.params.Methods.Enabled(m)
}

// Compare evaluates a pair under every enabled method and returns the
// combined verdict. A method whose required feature is missing on either
// side contributes no verdict; it is non-participating, not a mismatch.
// A content hash match short-circuits: the pair matches with score 1.0
// regardless of every other signal.
func (s *Scorer) Compare(a, b *models.FileRecord) models.CombinedVerdict {
	combined := models.CombinedVerdict{}

	for _, m := range models.AllMethods {
		if !s.params.Methods.Enabled(m) {
			continue
		}
		v, ok := s.compareMethod(m, a, b)
		if !ok {
			continue
		}

		if m == models.MethodContentHash && v.Match {
			return models.CombinedVerdict{
				Match:    true,
				Score:    1.0,
				Matched:  []models.Method{models.MethodContentHash},
				Verdicts: []models.PairVerdict{v},
			}
		}

		combined.Verdicts = append(combined.Verdicts, v)
		if v.Score > combined.Score {
			combined.Score = v.Score
		}
		if v.Match {
			combined.Matched = append(combined.Matched, m)
		}
	}

	combined.Match = len(combined.Matched) >= s.params.MinMethodMatches
	return combined
}

func (s *Scorer) compareMethod(m models.Method, a, b *models.FileRecord) (models.PairVerdict, bool) {
	switch m {
	case models.MethodContentHash:
		return s.compareContentHash(a, b)
	case models.MethodPerceptual:
		return s.comparePerceptual(a, b)
	case models.MethodFilename:
		return s.compareFilename(a, b)
	case models.MethodSize:
		return s.compareSize(a, b)
	case models.MethodMetadata:
		return s.compareMetadata(a, b)
	default:
		return models.PairVerdict{}, false
	}
}

// compareContentHash matches on exact digest equality only.
func (s *Scorer) compareContentHash(a, b *models.FileRecord) (models.PairVerdict, bool) {
	ha, hb := a.Features.ContentHash, b.Features.ContentHash
	if ha == "" || hb == "" {
		return models.PairVerdict{}, false
	}
	v := models.PairVerdict{Method: models.MethodContentHash}
	if ha == hb {
		v.Match = true
		v.Score = 1.0
	}
	return v, true
}

// comparePerceptual averages the normalized Hamming distance across the
// hash variants: similarity = 1 - distance/bits.
func (s *Scorer) comparePerceptual(a, b *models.FileRecord) (models.PairVerdict, bool) {
	ha, hb := a.Features.PerceptualHashes, b.Features.PerceptualHashes
	if len(ha) == 0 || len(hb) == 0 || len(ha) != len(hb) {
		return models.PairVerdict{}, false
	}

	total := 0.0
	for i := range ha {
		total += 1.0 - float64(HammingDistance(ha[i], hb[i]))/hashBits
	}
	sim := total / float64(len(ha))

	return models.PairVerdict{
		Method: models.MethodPerceptual,
		Match:  sim >= s.params.PerceptualThreshold,
		Score:  sim,
	}, true
}

// copySuffix matches trailing copy markers on a normalized stem, such as
// the "copy" in "img001copy" or the counter in "photo2".
var copySuffix = regexp.MustCompile(`(?:copy|backup|\d+)$`)

// compareFilename uses a normalized edit-distance ratio on the stems.
// Names that differ only by a copy-style suffix score at least 0.95.
func (s *Scorer) compareFilename(a, b *models.FileRecord) (models.PairVerdict, bool) {
	na, nb := a.Features.NormalizedName, b.Features.NormalizedName
	if na == "" || nb == "" {
		return models.PairVerdict{}, false
	}

	ratio := 0.0
	if na == nb {
		ratio = 1.0
	} else {
		ratio = levenshteinRatio(na, nb)
		ba := copySuffix.ReplaceAllString(na, "")
		bb := copySuffix.ReplaceAllString(nb, "")
		if ba == bb && len(ba) > 2 && ratio < 0.95 {
			ratio = 0.95
		}
	}

	return models.PairVerdict{
		Method: models.MethodFilename,
		Match:  ratio >= s.params.FilenameThreshold,
		Score:  ratio,
	}, true
}

// compareSize matches when the sizes differ by no more than the tolerance
// fraction of the larger file.
func (s *Scorer) compareSize(a, b *models.FileRecord) (models.PairVerdict, bool) {
	larger, smaller := a.Size, b.Size
	if smaller > larger {
		larger, smaller = smaller, larger
	}
	if larger == 0 {
		return models.PairVerdict{}, false
	}

	sim := float64(smaller) / float64(larger)
	diff := 1.0 - sim

	return models.PairVerdict{
		Method: models.MethodSize,
		Match:  diff <= s.params.SizeTolerance,
		Score:  sim,
	}, true
}

// metadataFields is the number of EXIF fields participating in the
// agreement count.
const metadataFields = 9

// compareMetadata matches when at least MetadataMinFields EXIF fields
// agree exactly. Only fields present on both sides can agree.
func (s *Scorer) compareMetadata(a, b *models.FileRecord) (models.PairVerdict, bool) {
	ea, eb := a.Features.Exif, b.Features.Exif
	if ea == nil || eb == nil {
		return models.PairVerdict{}, false
	}

	agree := 0
	if ea.CameraMake != "" && ea.CameraMake == eb.CameraMake {
		agree++
	}
	if ea.CameraModel != "" && ea.CameraModel == eb.CameraModel {
		agree++
	}
	if ea.Width > 0 && ea.Width == eb.Width {
		agree++
	}
	if ea.Height > 0 && ea.Height == eb.Height {
		agree++
	}
	if ea.ISO != "" && ea.ISO == eb.ISO {
		agree++
	}
	if ea.ExposureTime != "" && ea.ExposureTime == eb.ExposureTime {
		agree++
	}
	if ea.FNumber != "" && ea.FNumber == eb.FNumber {
		agree++
	}
	if ea.FocalLength != "" && ea.FocalLength == eb.FocalLength {
		agree++
	}
	if ea.TakenAt != "" && ea.TakenAt == eb.TakenAt {
		agree++
	}

	return models.PairVerdict{
		Method: models.MethodMetadata,
		Match:  agree >= s.params.MetadataMinFields,
		Score:  float64(agree) / metadataFields,
	}, true
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(h1, h2 uint64) int {
	xor := h1 ^ h2
	count := 0
	for xor != 0 {
		count++
		xor &= xor - 1
	}
	return count
}

// levenshteinRatio returns 1 - editDistance/maxLen.
func levenshteinRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1.0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return 1.0 - float64(prev[len(rb)])/float64(maxLen)
}
