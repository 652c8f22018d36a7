// Package mediastore owns the upload working directory.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/renameio/v2"
	"video-insights-go/internal/types"
)

var (
	// ErrUnsupportedFormat rejects uploads whose extension is not a known video container.
	ErrUnsupportedFormat = errors.New("invalid video file format")
	// ErrExists guards against overwriting a stored upload.
	ErrExists = errors.New("stored media already exists")
	// ErrInvalidID rejects ids that could escape the upload directory.
	ErrInvalidID = errors.New("invalid media id")
)

var supportedExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Store writes uploads to a dedicated directory under request-unique names.
type Store struct {
	dir string
}

// New creates the upload directory if needed.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the upload directory.
func (s *Store) Dir() string {
	return s.dir
}

// Extension returns the lower-cased extension of filename, including the dot.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Validate checks the filename's extension without touching the filesystem.
// A dotfile such as ".mp4" has no extension and is rejected.
func Validate(filename string) error {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if strings.TrimSuffix(base, ext) == "" || !supportedExtensions[strings.ToLower(ext)] {
		return ErrUnsupportedFormat
	}
	return nil
}

// PathFor returns where the upload for id would be stored.
func (s *Store) PathFor(id, filename string) string {
	return filepath.Join(s.dir, id+Extension(filename))
}

// Persist writes data under a name derived from id, never from the client's
// filename, so concurrent uploads of the same file cannot collide.
func (s *Store) Persist(ctx context.Context, id, filename string, data []byte) (types.StoredMedia, error) {
	if err := Validate(filename); err != nil {
		return types.StoredMedia{}, err
	}
	if !validID.MatchString(id) {
		return types.StoredMedia{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if err := ctx.Err(); err != nil {
		return types.StoredMedia{}, err
	}

	path := s.PathFor(id, filename)
	if _, err := os.Lstat(path); err == nil {
		return types.StoredMedia{}, fmt.Errorf("%w: %s", ErrExists, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return types.StoredMedia{}, fmt.Errorf("stat %s: %w", path, err)
	}

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return types.StoredMedia{}, fmt.Errorf("write %s: %w", path, err)
	}

	return types.StoredMedia{
		ID:           id,
		Path:         path,
		OriginalName: filepath.Base(filename),
		Size:         int64(len(data)),
	}, nil
}

// Delete removes the stored upload. Removing a missing file is not an error.
func (s *Store) Delete(media types.StoredMedia) error {
	return Remove(media.Path)
}

// Remove deletes path, treating an already-missing file as success.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
