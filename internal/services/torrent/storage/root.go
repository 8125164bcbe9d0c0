package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"torrentplay/internal/domain"
)

var errOutsideRoot = errors.New("path is outside the storage root")

// Root is the per-application directory that holds session storage. Every
// path it hands out or removes stays below it.
type Root struct {
	dir string
}

func NewRoot(dir string) (*Root, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage root not configured")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	abs = filepath.Clean(abs)
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Root{dir: abs}, nil
}

func (r *Root) Dir() string {
	return r.dir
}

// SessionDir returns <root>/<sanitized id>/<generation>. The directory itself
// is created by the engine's file storage.
func (r *Root) SessionDir(id domain.TorrentID, generation uint64) string {
	return filepath.Join(r.dir, sanitizeID(id), strconv.FormatUint(generation, 10))
}

// RemoveAll deletes path recursively. A missing path is not an error. The
// parent identifier directory is removed as well once it is empty.
func (r *Root) RemoveAll(path string) error {
	full, err := r.within(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrFsCleanup, path, err)
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFsCleanup, err)
	}
	if parent := filepath.Dir(full); parent != r.dir {
		// Fails while a newer generation still lives next to it.
		_ = os.Remove(parent)
	}
	return nil
}

// FreeBytes reports free space on the filesystem holding the root.
func (r *Root) FreeBytes() (int64, error) {
	return diskFreeBytes(r.dir)
}

func (r *Root) within(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("empty path")
	}
	full, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	full = filepath.Clean(full)
	if !strings.HasPrefix(full, r.dir+string(os.PathSeparator)) {
		return "", errOutsideRoot
	}
	return full, nil
}

// sanitizeID maps an identifier onto a single safe path element.
func sanitizeID(id domain.TorrentID) string {
	var b strings.Builder
	for _, r := range string(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" {
		return "_"
	}
	return name
}
