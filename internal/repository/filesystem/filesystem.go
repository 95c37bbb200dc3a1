// Package filesystem implements repository.PhotoStore on a local directory tree:
//
//	<root>/
//	  <year>/
//	    <timestamp>_<name>
//
// Year directories are created on first write and never removed.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sakif/photo-gallery/internal/apperror"
	"github.com/sakif/photo-gallery/internal/model"
	"github.com/sakif/photo-gallery/internal/repository"
)

// Store is a directory-backed photo store.
type Store struct {
	root string
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("filesystem: creating upload root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory the store writes under.
func (s *Store) Root() string { return s.root }

// List returns every regular file under the year directory, unsorted and
// unfiltered. A missing year directory yields an empty slice.
func (s *Store) List(ctx context.Context, year string) ([]model.Photo, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, year))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Photo{}, nil
		}
		return nil, fmt.Errorf("filesystem: reading year %s: %w", year, err)
	}

	photos := make([]model.Photo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		photos = append(photos, model.Photo{
			Year:     year,
			Filename: e.Name(),
			URL:      repository.PhotoURL(year, e.Name()),
		})
	}
	return photos, nil
}

// Put writes r to <root>/<year>/<name> via a temp file that is hard-linked
// into place, so a half-written upload is never visible under its final name.
// An existing file is never replaced: that case returns apperror.ErrConflict.
func (s *Store) Put(ctx context.Context, year, name string, r io.Reader) (model.Photo, error) {
	dir := filepath.Join(s.root, year)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return model.Photo{}, fmt.Errorf("filesystem: creating year directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return model.Photo{}, fmt.Errorf("filesystem: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return model.Photo{}, fmt.Errorf("filesystem: writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return model.Photo{}, fmt.Errorf("filesystem: closing temp file: %w", err)
	}
	if err := os.Link(tmpPath, filepath.Join(dir, name)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return model.Photo{}, apperror.Conflict("photo", year+"/"+name)
		}
		return model.Photo{}, fmt.Errorf("filesystem: linking %s: %w", name, err)
	}

	return model.Photo{Year: year, Filename: name, URL: repository.PhotoURL(year, name)}, nil
}

// Delete removes <root>/<year>/<name>. It reports false, nil when the file
// does not exist.
func (s *Store) Delete(ctx context.Context, year, name string) (bool, error) {
	path := filepath.Join(s.root, year, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("filesystem: stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("filesystem: removing %s: %w", path, err)
	}
	return true, nil
}

// Open returns a reader over a stored photo.
func (s *Store) Open(ctx context.Context, year, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, year, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.NotFound("photo", year+"/"+name)
		}
		return nil, fmt.Errorf("filesystem: opening %s/%s: %w", year, name, err)
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, apperror.NotFound("photo", year+"/"+name)
	}
	return f, nil
}

// Compile-time check that Store implements repository.PhotoStore.
var _ repository.PhotoStore = (*Store)(nil)
