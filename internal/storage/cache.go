// Package storage persists extracted FeatureSets between runs so
// unchanged files skip hashing and decoding, plus a small run history.
// The cache is an optimization only; results never depend on it.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"photodedup/internal/models"
)

// Cache is a SQLite-backed feature cache.
type Cache struct {
	db   *sql.DB
	path string
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &Cache{db: db, path: path}
	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

const schemaVersion = 1

var migrations = []struct {
	version int
	up      string
}{
	{
		version: 1,
		up: `
			CREATE TABLE IF NOT EXISTS features (
				path            TEXT PRIMARY KEY,
				size            INTEGER NOT NULL,
				mod_time        INTEGER NOT NULL,
				content_hash    TEXT NOT NULL DEFAULT '',
				phashes         TEXT NOT NULL DEFAULT '',
				normalized_name TEXT NOT NULL DEFAULT '',
				exif_checked    INTEGER NOT NULL DEFAULT 0,
				camera_make     TEXT NOT NULL DEFAULT '',
				camera_model    TEXT NOT NULL DEFAULT '',
				width           INTEGER NOT NULL DEFAULT 0,
				height          INTEGER NOT NULL DEFAULT 0,
				iso             TEXT NOT NULL DEFAULT '',
				exposure_time   TEXT NOT NULL DEFAULT '',
				f_number        TEXT NOT NULL DEFAULT '',
				focal_length    TEXT NOT NULL DEFAULT '',
				taken_at        TEXT NOT NULL DEFAULT '',
				updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_features_content_hash ON features(content_hash);

			CREATE TABLE IF NOT EXISTS run_history (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				roots         TEXT NOT NULL,
				files_scanned INTEGER NOT NULL,
				group_count   INTEGER NOT NULL,
				duplicates    INTEGER NOT NULL,
				cancelled     INTEGER NOT NULL,
				elapsed_ms    INTEGER NOT NULL,
				created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
}

func (c *Cache) init() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	var current int
	err = c.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("cache schema version %d is newer than supported %d", current, schemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := c.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := c.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	return nil
}

// Lookup returns the cached FeatureSet for path, or nil when the entry is
// missing or stale (size or modification time changed).
func (c *Cache) Lookup(path string, size int64, modTime time.Time) (*models.FeatureSet, error) {
	row := c.db.QueryRow(`
		SELECT content_hash, phashes, normalized_name, exif_checked,
		       camera_make, camera_model, width, height,
		       iso, exposure_time, f_number, focal_length, taken_at
		FROM features
		WHERE path = ? AND size = ? AND mod_time = ?
	`, path, size, modTime.UnixNano())

	var (
		fs          models.FeatureSet
		phashes     string
		exifChecked int
		exif        models.ExifSummary
	)
	err := row.Scan(
		&fs.ContentHash, &phashes, &fs.NormalizedName, &exifChecked,
		&exif.CameraMake, &exif.CameraModel, &exif.Width, &exif.Height,
		&exif.ISO, &exif.ExposureTime, &exif.FNumber, &exif.FocalLength, &exif.TakenAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	if phashes != "" {
		if err := json.Unmarshal([]byte(phashes), &fs.PerceptualHashes); err != nil {
			return nil, nil // malformed entry, treat as a miss
		}
	}
	if exifChecked == 1 {
		fs.ExifChecked = true
		fs.Exif = &exif
	}

	return &fs, nil
}

// Store upserts the FeatureSet of a record.
func (c *Cache) Store(rec *models.FileRecord) error {
	fs := rec.Features
	if fs == nil {
		return fmt.Errorf("record %s has no features", rec.Path)
	}

	var phashes string
	if len(fs.PerceptualHashes) > 0 {
		data, err := json.Marshal(fs.PerceptualHashes)
		if err != nil {
			return fmt.Errorf("failed to encode hashes: %w", err)
		}
		phashes = string(data)
	}

	exif := fs.Exif
	if exif == nil {
		exif = &models.ExifSummary{}
	}
	exifChecked := 0
	if fs.ExifChecked {
		exifChecked = 1
	}

	_, err := c.db.Exec(`
		INSERT INTO features (
			path, size, mod_time, content_hash, phashes, normalized_name, exif_checked,
			camera_make, camera_model, width, height, iso, exposure_time, f_number, focal_length, taken_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			content_hash = excluded.content_hash,
			phashes = excluded.phashes,
			normalized_name = excluded.normalized_name,
			exif_checked = excluded.exif_checked,
			camera_make = excluded.camera_make,
			camera_model = excluded.camera_model,
			width = excluded.width,
			height = excluded.height,
			iso = excluded.iso,
			exposure_time = excluded.exposure_time,
			f_number = excluded.f_number,
			focal_length = excluded.focal_length,
			taken_at = excluded.taken_at,
			updated_at = CURRENT_TIMESTAMP
	`, rec.Path, rec.Size, rec.ModTime.UnixNano(), fs.ContentHash, phashes, fs.NormalizedName, exifChecked,
		exif.CameraMake, exif.CameraModel, exif.Width, exif.Height,
		exif.ISO, exif.ExposureTime, exif.FNumber, exif.FocalLength, exif.TakenAt)
	if err != nil {
		return fmt.Errorf("failed to store features for %s: %w", rec.Path, err)
	}
	return nil
}

// RecordRun appends a run to the history.
func (c *Cache) RecordRun(roots []string, res *models.RunResult) error {
	cancelled := 0
	if res.Cancelled {
		cancelled = 1
	}
	_, err := c.db.Exec(`
		INSERT INTO run_history (roots, files_scanned, group_count, duplicates, cancelled, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, strings.Join(roots, string(os.PathListSeparator)),
		res.FilesScanned, len(res.Groups), res.TotalDuplicates(), cancelled, res.Elapsed.Milliseconds())
	return err
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int
	Runs    int
}

// GetStats returns entry and run counts.
func (c *Cache) GetStats() (Stats, error) {
	var s Stats
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM features`).Scan(&s.Entries); err != nil {
		return s, err
	}
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM run_history`).Scan(&s.Runs); err != nil {
		return s, err
	}
	return s, nil
}

// Purge removes all cached features, keeping the run history.
func (c *Cache) Purge() error {
	_, err := c.db.Exec(`DELETE FROM features`)
	return err
}

// Path returns the database location.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
