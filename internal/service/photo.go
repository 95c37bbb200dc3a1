// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database or the photo store
//
// Services take and return plain Go values and apperror kinds; they never
// see an *http.Request. Admin checks happen before a service is called.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/photo-gallery/internal/apperror"
	"github.com/sakif/photo-gallery/internal/model"
	"github.com/sakif/photo-gallery/internal/repository"
)

// allowedExtensions is the set of image types accepted on upload and shown
// in listings. Keys are lower case without the dot.
var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
}

var yearPattern = regexp.MustCompile(`^[0-9]{4}$`)

// errDeleteFailed is what callers see when the store fails unexpectedly.
// The underlying cause is logged, not returned.
var errDeleteFailed = errors.New("service/photo: deletion failed")

// Clock abstracts time retrieval so stored names are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Upload is one file of a multipart upload.
type Upload struct {
	Filename string
	Body     io.Reader
}

// PhotoService implements upload, listing and deletion of year-grouped photos.
type PhotoService struct {
	store  repository.PhotoStore
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	lastName time.Time // timestamp of the last issued stored name
}

// NewPhotoService creates a PhotoService over the given store.
func NewPhotoService(store repository.PhotoStore, clock Clock, logger *slog.Logger) *PhotoService {
	return &PhotoService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Upload stores every acceptable file under year and returns how many were
// stored.
//
// Files without an allowed image extension are skipped silently, and a file
// the store fails to write is logged and skipped: one bad file never fails
// the rest of the batch. Only an invalid year rejects the whole call.
func (s *PhotoService) Upload(ctx context.Context, year string, files []Upload) (int, error) {
	if err := validateYear(year); err != nil {
		return 0, err
	}

	accepted := 0
	for _, f := range files {
		ext, ok := allowedExtension(f.Filename)
		if !ok {
			s.logger.Info("upload skipped: extension not allowed",
				slog.String("filename", f.Filename),
			)
			continue
		}

		name := timestampPrefix(s.nextTimestamp()) + "_" + storedName(f.Filename, ext)
		if _, err := s.store.Put(ctx, year, name, f.Body); err != nil {
			s.logger.Error("upload failed",
				slog.String("year", year),
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		accepted++
	}

	s.logger.Info("photos uploaded",
		slog.String("year", year),
		slog.Int("accepted", accepted),
		slog.Int("submitted", len(files)),
	)
	return accepted, nil
}

// List returns the photos of a year, most recently uploaded first.
// A year nobody uploaded to yields an empty slice, and so does a malformed
// year, which can never have been uploaded to.
func (s *PhotoService) List(ctx context.Context, year string) ([]model.Photo, error) {
	if validateYear(year) != nil {
		return []model.Photo{}, nil
	}

	all, err := s.store.List(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("service/photo: listing %s: %w", year, err)
	}

	photos := make([]model.Photo, 0, len(all))
	for _, p := range all {
		if _, ok := allowedExtension(p.Filename); ok {
			photos = append(photos, p)
		}
	}

	// The timestamp prefix makes name order equal upload order.
	sort.Slice(photos, func(i, j int) bool {
		return photos[i].Filename > photos[j].Filename
	})
	return photos, nil
}

// Delete removes one photo.
//
// Errors:
//   - apperror.ErrNotFound: no such photo, including under a malformed year
//   - anything else is a generic failure; the cause is only logged
func (s *PhotoService) Delete(ctx context.Context, year, filename string) error {
	if validateYear(year) != nil {
		return apperror.NotFound("photo", year+"/"+filename)
	}

	name := SanitizeFilename(filename)
	if name == "" {
		return apperror.NotFound("photo", year+"/"+filename)
	}

	removed, err := s.store.Delete(ctx, year, name)
	if err != nil {
		s.logger.Error("photo deletion failed",
			slog.String("year", year),
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		return errDeleteFailed
	}
	if !removed {
		return apperror.NotFound("photo", year+"/"+name)
	}

	s.logger.Info("photo deleted",
		slog.String("year", year),
		slog.String("filename", name),
	)
	return nil
}

// Open returns the content of a stored photo for serving.
// Names that could not have been produced by Upload are reported as not found.
func (s *PhotoService) Open(ctx context.Context, year, filename string) (io.ReadCloser, error) {
	if err := validateYear(year); err != nil {
		return nil, apperror.NotFound("photo", year+"/"+filename)
	}
	if filename != SanitizeFilename(filename) {
		return nil, apperror.NotFound("photo", year+"/"+filename)
	}
	if _, ok := allowedExtension(filename); !ok {
		return nil, apperror.NotFound("photo", year+"/"+filename)
	}

	rc, err := s.store.Open(ctx, year, filename)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/photo: opening %s/%s: %w", year, filename, err)
	}
	return rc, nil
}

// ContentType maps an allowed extension to its MIME type.
func ContentType(filename string) string {
	ext, _ := allowedExtension(filename)
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "":
		return "application/octet-stream"
	default:
		return "image/" + ext
	}
}

// nextTimestamp reads the clock, moving forward by a microsecond when the
// reading would not sort after the previous one. Names issued by one service
// therefore never collide, even within a batch.
func (s *PhotoService) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().Truncate(time.Microsecond)
	if !now.After(s.lastName) {
		now = s.lastName.Add(time.Microsecond)
	}
	s.lastName = now
	return now
}

func validateYear(year string) error {
	if !yearPattern.MatchString(year) {
		return apperror.ValidationFailed("year", "year must be four digits")
	}
	return nil
}

// allowedExtension returns the lower-cased extension of name (no dot) and
// whether it is an accepted image type.
func allowedExtension(name string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return "", false
	}
	return ext, allowedExtensions[ext]
}

// timestampPrefix formats t with microsecond resolution, e.g.
// 20250314_093015_123456. Lexical order equals chronological order.
func timestampPrefix(t time.Time) string {
	return t.Format("20060102_150405") + fmt.Sprintf("_%06d", t.Nanosecond()/1000)
}

// storedName sanitizes an uploaded name while guaranteeing the extension
// survives: a name whose stem sanitizes to nothing (e.g. non-ASCII) becomes
// "photo.<ext>".
func storedName(original, ext string) string {
	base := original
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	stem := SanitizeFilename(base[:len(base)-len(ext)-1])
	if stem == "" {
		stem = "photo"
	}
	return stem + "." + ext
}

// SanitizeFilename strips everything path-unsafe from name: separators
// become spaces, whitespace runs become "_", only ASCII letters, digits,
// '.', '_' and '-' are kept, and leading/trailing '.' and '_' are trimmed.
// The result never contains a separator and is never "." or "..".
func SanitizeFilename(name string) string {
	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}
