package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/photo-gallery/internal/apperror"
	"github.com/sakif/photo-gallery/internal/auth"
	"github.com/sakif/photo-gallery/internal/service"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory; the rest spills to temp files.
const multipartMemory = 8 << 20

// PhotoHandler serves the upload form target, the photo JSON API and the
// stored photo files.
type PhotoHandler struct {
	photos      *service.PhotoService
	flashes     *auth.Flashes
	defaultYear string
	maxBytes    int64
	logger      *slog.Logger
}

// NewPhotoHandler creates a PhotoHandler. maxBytes bounds the whole upload
// request body.
func NewPhotoHandler(photos *service.PhotoService, flashes *auth.Flashes, defaultYear string, maxBytes int64, logger *slog.Logger) *PhotoHandler {
	return &PhotoHandler{
		photos:      photos,
		flashes:     flashes,
		defaultYear: defaultYear,
		maxBytes:    maxBytes,
		logger:      logger,
	}
}

// GalleryURL is where page-flow photo actions land afterwards.
func GalleryURL(year string) string {
	if year == "" {
		return "/photo"
	}
	return "/photo?year=" + url.QueryEscape(year)
}

// HandleUpload stores the files of a multipart form.
//
// HTTP: POST /upload   (admin only, enforced by middleware)
// FORM: file (one or more), year (optional)
//
// Always answers with a redirect back to the gallery of the year. A request
// without files is redirected without touching the store.
func (h *PhotoHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("upload rejected: body too large", slog.Int64("limit", tooLarge.Limit))
			h.flash(w, r, fmt.Sprintf("Upload too large (limit %d bytes)", tooLarge.Limit))
		} else {
			h.logger.Warn("upload rejected: malformed form", slog.String("error", err.Error()))
		}
		http.Redirect(w, r, GalleryURL(h.defaultYear), http.StatusSeeOther)
		return
	}
	defer r.MultipartForm.RemoveAll()

	year := r.FormValue("year")
	if year == "" {
		year = h.defaultYear
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		http.Redirect(w, r, GalleryURL(year), http.StatusSeeOther)
		return
	}

	uploads, closeAll := openUploads(headers, h.logger)
	defer closeAll()

	n, err := h.photos.Upload(r.Context(), year, uploads)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			h.flash(w, r, appErr.Message)
		}
		http.Redirect(w, r, GalleryURL(h.defaultYear), http.StatusSeeOther)
		return
	}

	switch n {
	case 0:
		h.flash(w, r, "No photos uploaded: only png, jpg, jpeg, gif and webp files are accepted")
	case 1:
		h.flash(w, r, "1 photo uploaded")
	default:
		h.flash(w, r, fmt.Sprintf("%d photos uploaded", n))
	}
	http.Redirect(w, r, GalleryURL(year), http.StatusSeeOther)
}

// openUploads opens every part. Parts that cannot be opened are skipped.
func openUploads(headers []*multipart.FileHeader, logger *slog.Logger) ([]service.Upload, func()) {
	uploads := make([]service.Upload, 0, len(headers))
	var files []io.Closer

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			logger.Error("failed to open upload part",
				slog.String("filename", fh.Filename),
				slog.String("error", err.Error()),
			)
			continue
		}
		files = append(files, f)
		uploads = append(uploads, service.Upload{Filename: fh.Filename, Body: f})
	}

	return uploads, func() {
		for _, f := range files {
			f.Close()
		}
	}
}

// HandleList returns the photos of a year, most recent first.
//
// HTTP: GET /api/photos/{year}
//
// RESPONSE FORMAT:
//
//	[{"filename":"20250314_093015_123456_a.png","url":"/uploads/2025/20250314_093015_123456_a.png"}]
//
// A year without photos, malformed years included, yields [] rather than null.
func (h *PhotoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	photos, err := h.photos.List(r.Context(), chi.URLParam(r, "year"))
	if err != nil {
		h.logger.Error("failed to list photos", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

// deleteResponse is the body of a successful deletion.
type deleteResponse struct {
	Success bool `json:"success"`
}

// HandleDelete removes one photo.
//
// HTTP: DELETE /api/photos/{year}/{filename}   (admin only)
//
//	200 {"success":true}
//	403 not an admin (middleware)
//	404 no such photo
//	500 anything else, without detail
func (h *PhotoHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	year := chi.URLParam(r, "year")
	filename := chi.URLParam(r, "filename")

	if err := h.photos.Delete(r.Context(), year, filename); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true})
}

// HandleServe streams a stored photo.
//
// HTTP: GET /uploads/{year}/{filename}
func (h *PhotoHandler) HandleServe(w http.ResponseWriter, r *http.Request) {
	year := chi.URLParam(r, "year")
	filename := chi.URLParam(r, "filename")

	rc, err := h.photos.Open(r.Context(), year, filename)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("failed to open photo",
			slog.String("year", year),
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", service.ContentType(filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("photo transfer interrupted",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
	}
}

func (h *PhotoHandler) flash(w http.ResponseWriter, r *http.Request, msg string) {
	if h.flashes == nil {
		return
	}
	if err := h.flashes.Add(w, r, msg); err != nil {
		h.logger.Warn("failed to queue flash", slog.String("error", err.Error()))
	}
}
