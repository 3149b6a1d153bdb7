// Package extract computes per-file similarity signals. Each signal is
// computed only when its detection method is enabled; skipping unused
// extraction is the main cost-control lever for large collections.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"photodedup/internal/models"
	"photodedup/internal/scan"
)

var (
	// ErrUnreadableFile marks a file that could not be opened or decoded.
	ErrUnreadableFile = errors.New("unreadable file")
	// ErrUnsupportedFormat marks a file whose extension or content is not
	// a recognized image type.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Cache stores extracted FeatureSets between runs, keyed by path plus
// size and modification time so stale entries miss.
type Cache interface {
	Lookup(path string, size int64, modTime time.Time) (*models.FeatureSet, error)
	Store(rec *models.FileRecord) error
}

// Extractor computes FeatureSets for the enabled methods.
type Extractor struct {
	methods models.MethodSet
	timeout time.Duration
	cache   Cache
	logger  *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTimeout bounds the extraction of a single file. A file that times
// out is reported unreadable, not fatal.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCache attaches a feature cache.
func WithCache(c Cache) Option {
	return func(e *Extractor) {
		e.cache = c
	}
}

// New creates an Extractor for the given method set.
func New(methods models.MethodSet, logger *zap.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		methods: methods,
		timeout: 30 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract computes the FeatureSet for one file, populating only the
// fields whose methods are enabled. The file itself is never modified.
func (e *Extractor) Extract(rec *models.FileRecord) (*models.FeatureSet, error) {
	if !scan.IsSupportedImage(rec.Path) {
		return nil, fmt.Errorf("%s: %w", filepath.Ext(rec.Path), ErrUnsupportedFormat)
	}

	if e.cache != nil {
		if fs, err := e.cache.Lookup(rec.Path, rec.Size, rec.ModTime); err != nil {
			e.logger.Warn("feature cache lookup failed", zap.String("path", rec.Path), zap.Error(err))
		} else if fs != nil && e.covers(fs) {
			return fs, nil
		}
	}

	fs := &models.FeatureSet{}

	if e.methods.Enabled(models.MethodFilename) {
		fs.NormalizedName = NormalizeName(rec.Path)
	}

	if e.methods.Enabled(models.MethodContentHash) {
		sum, err := contentHash(rec.Path)
		if err != nil {
			return nil, err
		}
		fs.ContentHash = sum
	}

	// Decoding the pixel data is the expensive step; it is needed for the
	// perceptual hashes and for the dimensions in the metadata summary.
	needDecode := e.methods.Enabled(models.MethodPerceptual) || e.methods.Enabled(models.MethodMetadata)
	if needDecode {
		img, err := decodeImage(rec.Path)
		if err != nil {
			return nil, err
		}

		if e.methods.Enabled(models.MethodPerceptual) {
			hashes, err := perceptualHashes(img)
			if err != nil {
				return nil, fmt.Errorf("failed to compute perceptual hash for %s: %w", rec.Path, ErrUnreadableFile)
			}
			fs.PerceptualHashes = hashes
		}

		if e.methods.Enabled(models.MethodMetadata) {
			summary := exifSummary(rec.Path)
			if summary == nil {
				summary = &models.ExifSummary{}
			}
			bounds := img.Bounds()
			summary.Width = bounds.Dx()
			summary.Height = bounds.Dy()
			fs.Exif = summary
			fs.ExifChecked = true
		}
	}

	if e.cache != nil {
		cached := *rec
		cached.Features = fs
		if err := e.cache.Store(&cached); err != nil {
			e.logger.Warn("feature cache store failed", zap.String("path", rec.Path), zap.Error(err))
		}
	}

	return fs, nil
}

// ExtractWithTimeout runs Extract with the configured per-file deadline.
func (e *Extractor) ExtractWithTimeout(rec *models.FileRecord) (*models.FeatureSet, error) {
	done := make(chan struct{})
	var fs *models.FeatureSet
	var err error

	go func() {
		fs, err = e.Extract(rec)
		close(done)
	}()

	select {
	case <-done:
		return fs, err
	case <-time.After(e.timeout):
		return nil, fmt.Errorf("timeout extracting %s: %w", rec.Path, ErrUnreadableFile)
	}
}

// covers reports whether a cached FeatureSet has every field the enabled
// methods need. A set cached under a narrower configuration forces a
// recompute.
func (e *Extractor) covers(fs *models.FeatureSet) bool {
	if e.methods.Enabled(models.MethodContentHash) && fs.ContentHash == "" {
		return false
	}
	if e.methods.Enabled(models.MethodPerceptual) && len(fs.PerceptualHashes) == 0 {
		return false
	}
	if e.methods.Enabled(models.MethodFilename) && fs.NormalizedName == "" {
		return false
	}
	if e.methods.Enabled(models.MethodMetadata) && !fs.ExifChecked {
		return false
	}
	return true
}

// NormalizeName lowercases the filename stem and strips separator
// characters, so "IMG_001 (2).jpg" becomes "img0012".
func NormalizeName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.ToLower(stem)

	var b strings.Builder
	b.Grow(len(stem))
	for _, r := range stem {
		switch r {
		case '_', '-', ' ', '(', ')', '.', ',':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// contentHash computes the SHA-256 digest of the raw file bytes.
func contentHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, ErrUnreadableFile)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, ErrUnreadableFile)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// decodeImage opens and decodes the pixel data of an image file.
func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, ErrUnreadableFile)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("failed to decode %s: %w", path, ErrUnsupportedFormat)
		}
		return nil, fmt.Errorf("failed to decode %s: %w", path, ErrUnreadableFile)
	}
	return img, nil
}

// perceptualHashes computes the pHash, dHash and aHash variants. Their
// normalized distances are averaged at scoring time, following the
// combined-fingerprint approach.
func perceptualHashes(img image.Image) ([]uint64, error) {
	p, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, err
	}
	d, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return nil, err
	}
	a, err := goimagehash.AverageHash(img)
	if err != nil {
		return nil, err
	}
	return []uint64{p.GetHash(), d.GetHash(), a.GetHash()}, nil
}

// exifSummary reads the EXIF tags used by the metadata method. Absence of
// EXIF data is not an error; it returns nil and the method simply
// contributes nothing for this file.
func exifSummary(path string) *models.ExifSummary {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return nil
	}

	summary := &models.ExifSummary{
		CameraMake:   exifString(x, exif.Make),
		CameraModel:  exifString(x, exif.Model),
		ISO:          exifRaw(x, exif.ISOSpeedRatings),
		ExposureTime: exifRaw(x, exif.ExposureTime),
		FNumber:      exifRaw(x, exif.FNumber),
		FocalLength:  exifRaw(x, exif.FocalLength),
	}
	if t, err := x.DateTime(); err == nil {
		summary.TakenAt = t.Format(time.RFC3339)
	}
	return summary
}

func exifString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func exifRaw(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	return tag.String()
}
