package models

import (
	"encoding/json"
	"time"
)

// Method identifies one duplicate detection signal.
type Method int

const (
	MethodContentHash Method = iota
	MethodPerceptual
	MethodFilename
	MethodSize
	MethodMetadata
)

// AllMethods lists every method in a fixed order. Scoring iterates this
// slice so results do not depend on map ordering.
var AllMethods = []Method{
	MethodContentHash,
	MethodPerceptual,
	MethodFilename,
	MethodSize,
	MethodMetadata,
}

func (m Method) String() string {
	switch m {
	case MethodContentHash:
		return "content-hash"
	case MethodPerceptual:
		return "perceptual"
	case MethodFilename:
		return "filename"
	case MethodSize:
		return "size"
	case MethodMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// MarshalJSON renders methods as their names in reports.
func (m Method) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// MethodSet is the set of enabled detection methods.
type MethodSet map[Method]bool

// Enabled reports whether m is in the set.
func (s MethodSet) Enabled(m Method) bool {
	return s[m]
}

// Count returns the number of enabled methods.
func (s MethodSet) Count() int {
	n := 0
	for _, on := range s {
		if on {
			n++
		}
	}
	return n
}

// ExifSummary holds the EXIF fields that participate in metadata matching.
// All fields are best-effort; empty means the tag was absent.
type ExifSummary struct {
	CameraMake   string `json:"camera_make,omitempty"`
	CameraModel  string `json:"camera_model,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	ISO          string `json:"iso,omitempty"`
	ExposureTime string `json:"exposure_time,omitempty"`
	FNumber      string `json:"f_number,omitempty"`
	FocalLength  string `json:"focal_length,omitempty"`
	TakenAt      string `json:"taken_at,omitempty"`
}

// FeatureSet holds per-file signals. A field is populated only if its
// method was enabled for the run; absent fields make the method
// non-participating for pairs involving this file.
type FeatureSet struct {
	ContentHash      string       `json:"content_hash,omitempty"`
	PerceptualHashes []uint64     `json:"perceptual_hashes,omitempty"`
	Exif             *ExifSummary `json:"exif,omitempty"`
	NormalizedName   string       `json:"normalized_name,omitempty"`
	// ExifChecked distinguishes "EXIF extraction ran and found nothing"
	// from "metadata method was disabled" when reusing cached sets.
	ExifChecked bool `json:"exif_checked,omitempty"`
}

// FileRecord identifies one scanned file. Immutable after creation except
// for the lazily populated Features field.
type FileRecord struct {
	Path     string      `json:"path"`
	Size     int64       `json:"size"`
	ModTime  time.Time   `json:"mod_time"`
	Features *FeatureSet `json:"features,omitempty"`
}

// PairVerdict is the outcome of comparing two files under one method.
type PairVerdict struct {
	Method Method  `json:"method"`
	Match  bool    `json:"match"`
	Score  float64 `json:"score"`
}

// CombinedVerdict aggregates the per-method verdicts for one pair.
// Score is the maximum of the individual method scores so near-exact
// matches rank above weak metadata-only matches.
type CombinedVerdict struct {
	Match    bool          `json:"match"`
	Score    float64       `json:"score"`
	Matched  []Method      `json:"matched_methods,omitempty"`
	Verdicts []PairVerdict `json:"verdicts,omitempty"`
}

// PairMatch records one qualifying edge of the match graph, carrying the
// similarity explanation for the report.
type PairMatch struct {
	PathA   string          `json:"path_a"`
	PathB   string          `json:"path_b"`
	Verdict CombinedVerdict `json:"verdict"`
}

// DuplicateGroup is a maximal set of files transitively connected by
// qualifying matches. Files are ordered by path; groups hold references
// into the run's FileRecord set and never copy or mutate them.
type DuplicateGroup struct {
	ID             int           `json:"id"`
	Files          []*FileRecord `json:"files"`
	Score          float64       `json:"score"`
	MatchedMethods []Method      `json:"matched_methods"`
	Matches        []PairMatch   `json:"matches,omitempty"`
	SizeSavings    int64         `json:"size_savings"`
}

// Strategy selects the keeper within a group.
type Strategy string

const (
	StrategyKeepLargest Strategy = "keep-largest"
	StrategyKeepOldest  Strategy = "keep-oldest"
	StrategyPreviewOnly Strategy = "preview-only"
)

// ActionMode selects what the executor does with the plans.
type ActionMode string

const (
	ActionPreview ActionMode = "preview"
	ActionMove    ActionMode = "move-to-organized-folders"
	ActionExport  ActionMode = "export-report"
)

// ActionPlan designates the keeper and duplicates for one group.
// Keeper is nil for the preview-only strategy. Immutable once produced.
type ActionPlan struct {
	GroupID    int           `json:"group_id"`
	Strategy   Strategy      `json:"strategy"`
	Keeper     *FileRecord   `json:"keeper,omitempty"`
	Duplicates []*FileRecord `json:"duplicates,omitempty"`
	Rationale  string        `json:"rationale"`
}

// OpStatus is the per-operation outcome.
type OpStatus string

const (
	OpMoved     OpStatus = "moved"
	OpSimulated OpStatus = "simulated"
	OpSkipped   OpStatus = "skipped"
	OpFailed    OpStatus = "failed"
	OpWritten   OpStatus = "written"
)

// Operation records one executed or simulated file operation.
type Operation struct {
	Path   string   `json:"path"`
	Dest   string   `json:"dest,omitempty"`
	Role   string   `json:"role,omitempty"` // "keeper" or "duplicate"
	Status OpStatus `json:"status"`
	Reason string   `json:"reason,omitempty"`
}

// FileIssue records a per-file extraction failure. The file is excluded
// from comparison but the run continues.
type FileIssue struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RunResult is the externally visible artifact of a run.
type RunResult struct {
	Groups           []*DuplicateGroup `json:"groups"`
	Plans            []*ActionPlan     `json:"plans"`
	FilesScanned     int               `json:"files_scanned"`
	FilesAnalyzed    int               `json:"files_analyzed"`
	Comparisons      int64             `json:"comparisons"`
	Skipped          []FileIssue       `json:"skipped,omitempty"`
	Operations       []Operation       `json:"operations,omitempty"`
	PotentialSavings int64             `json:"potential_savings"`
	Elapsed          time.Duration     `json:"elapsed_ns"`
	Cancelled        bool              `json:"cancelled"`
}

// TotalDuplicates returns the number of files that would be classified as
// duplicates across all groups (group size minus the keeper).
func (r *RunResult) TotalDuplicates() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Files) - 1
	}
	return n
}
