// Package templatestore implements the persistent Template Store (spec.md
// §4.3): named template images kept on disk as PNG files, indexed by a
// sqlite3 metadata table, re-populated from disk on startup. Grounded on
// the teacher's internal/storage/database.go sqlite3 wiring, repurposed
// from ballistic-analysis rows to template rows.
package templatestore

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/verrors"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

// Info is the metadata returned by List, mirroring TemplateInfo in spec.md
// §4.3.
type Info struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Channels    int       `json:"channels"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the mutex-guarded template index plus its on-disk pixel files.
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	dir       string
	maxCount  int
	index     map[string]Info
	logger    *zap.Logger
}

// Open opens (creating if needed) the sqlite3 index at
// filepath.Join(dir, "templates.db"), creates the templates table, and
// re-populates the in-memory index by enumerating the index rows and
// checking that each row's PNG file exists in dir. Per-row scan errors are
// accumulated with multierr rather than aborting the whole re-population.
func Open(dir string, maxCount int, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating template storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "templates.db"))
	if err != nil {
		return nil, fmt.Errorf("opening template index: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to template index: %w", err)
	}

	const createTable = `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		channels INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(createTable); err != nil {
		return nil, fmt.Errorf("creating templates table: %w", err)
	}

	s := &Store{
		db:       db,
		dir:      dir,
		maxCount: maxCount,
		index:    make(map[string]Info),
		logger:   logger,
	}
	if err := s.repopulate(); err != nil {
		if logger != nil {
			logger.Warn("template re-population encountered errors", zap.Error(err))
		}
	}
	return s, nil
}

// repopulate enumerates the index table and verifies each referenced PNG
// file is still present, accumulating one error per missing/unreadable
// file without aborting the scan.
func (s *Store) repopulate() error {
	rows, err := s.db.Query(`SELECT id, name, description, width, height, channels, created_at FROM templates`)
	if err != nil {
		return fmt.Errorf("querying template index: %w", err)
	}
	defer rows.Close()

	var errs error
	for rows.Next() {
		var info Info
		var description sql.NullString
		if err := rows.Scan(&info.ID, &info.Name, &description, &info.Width, &info.Height, &info.Channels, &info.CreatedAt); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("scanning template row: %w", err))
			continue
		}
		info.Description = description.String

		if _, statErr := os.Stat(s.pixelPath(info.ID)); statErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("template %s: pixel file missing: %w", info.ID, statErr))
			continue
		}
		s.index[info.ID] = info
	}
	return multierr.Append(errs, rows.Err())
}

func (s *Store) pixelPath(id string) string {
	return filepath.Join(s.dir, id+".png")
}

// Upload stores img under a freshly generated id with the given name and
// optional description, writing the pixel buffer as a PNG and inserting
// its index row.
func (s *Store) Upload(name, description string, img vision.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxCount > 0 && len(s.index) >= s.maxCount {
		return "", verrors.New(verrors.CapacityExceeded, "template store is at capacity")
	}

	id := newTemplateID()
	if err := imaging.Save(img.Img, s.pixelPath(id)); err != nil {
		return "", verrors.Wrap(verrors.InternalError, "writing template pixel file", err)
	}

	info := Info{
		ID:          id,
		Name:        name,
		Description: description,
		Width:       img.Width(),
		Height:      img.Height(),
		Channels:    img.Channels,
		CreatedAt:   time.Now(),
	}
	if _, err := s.db.Exec(
		`INSERT INTO templates (id, name, description, width, height, channels, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Name, info.Description, info.Width, info.Height, info.Channels, info.CreatedAt,
	); err != nil {
		os.Remove(s.pixelPath(id))
		return "", verrors.Wrap(verrors.InternalError, "writing template index row", err)
	}

	s.index[id] = info
	return id, nil
}

// LearnFromROI validates roi against the source image's bounds, then
// stores source[roi] as a new template. Per spec.md §4.3, it is
// upload(name, pixels[roi]) with no back-reference kept to the source.
func (s *Store) LearnFromROI(source vision.Image, roi geometry.Rectangle, name, description string) (string, error) {
	clipped := roi.Clip(source.Width(), source.Height())
	if !clipped.IsValid(source.Width(), source.Height()) {
		return "", verrors.New(verrors.InvalidROI, "roi does not overlap the source image")
	}

	cropped := imaging.Crop(source.Img, image.Rect(clipped.X, clipped.Y, clipped.X2(), clipped.Y2()))
	return s.Upload(name, description, vision.NewImage(cropped))
}

// List returns metadata for every stored template.
func (s *Store) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Info, 0, len(s.index))
	for _, info := range s.index {
		out = append(out, info)
	}
	return out
}

// Get loads and decodes the template's pixel buffer. A missing file
// surfaces as TemplateNotFound, matching spec.md's stated behavior.
func (s *Store) Get(id string) (vision.Image, error) {
	s.mu.Lock()
	_, ok := s.index[id]
	s.mu.Unlock()
	if !ok {
		return vision.Image{}, verrors.New(verrors.TemplateNotFound, "no template stored under id "+id)
	}

	img, err := imaging.Open(s.pixelPath(id))
	if err != nil {
		return vision.Image{}, verrors.Wrap(verrors.TemplateNotFound, "template pixel file missing", err)
	}
	return vision.NewImage(img), nil
}

// Thumbnail returns a base64-encoded JPEG thumbnail no wider than maxWidth,
// preserving aspect ratio.
func (s *Store) Thumbnail(id string, maxWidth int) (string, error) {
	img, err := s.Get(id)
	if err != nil {
		return "", err
	}
	thumb := imaging.Resize(img.Img, maxWidth, 0, imaging.Lanczos)

	buf, err := encodeJPEG(thumb, 85)
	if err != nil {
		return "", verrors.Wrap(verrors.InternalError, "encoding template thumbnail", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Delete removes both the index row and the pixel file. Returns false if
// id was not present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	s.db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	os.Remove(s.pixelPath(id))
	return true
}

// Close closes the underlying sqlite3 handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func newTemplateID() string {
	return "tpl_" + randomHex(8)
}
