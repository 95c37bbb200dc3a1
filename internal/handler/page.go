// Package handler contains the HTTP request handlers of the photo gallery.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (path params, query, form, multipart)
// 2. Call the service layer
// 3. Write the HTTP response: a rendered page, a redirect or JSON
//
// Handlers hold no business rules. Admin checks happen in auth middleware
// before a handler runs.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/photo-gallery/internal/auth"
)

// layoutTemplate is the shared page skeleton. It is not a page itself.
const layoutTemplate = "base.html"

// pageNamePattern is the whole set of names /{page} can resolve. Anything
// with a dot or a slash is rejected before a lookup happens.
var pageNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var yearParamPattern = regexp.MustCompile(`^[0-9]{4}$`)

// PageData is what every page template receives.
type PageData struct {
	Page     string
	Identity auth.Identity
	LoggedIn bool
	IsAdmin  bool
	Flashes  []string
	Year     string
}

// PageHandler renders the HTML pages.
// Templates are parsed once at startup, so a request can only ever select
// one of the pages that existed then.
type PageHandler struct {
	pages       map[string]*template.Template
	flashes     *auth.Flashes
	defaultYear string
	logger      *slog.Logger
}

// NewPageHandler parses every *.html in templates. Each page is parsed
// together with base.html, which defines the "base" template and pulls the
// page in through {{template "content" .}}.
func NewPageHandler(templates fs.FS, flashes *auth.Flashes, defaultYear string, logger *slog.Logger) (*PageHandler, error) {
	files, err := fs.Glob(templates, "*.html")
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(files))
	for _, file := range files {
		if file == layoutTemplate {
			continue
		}
		name := strings.TrimSuffix(file, path.Ext(file))
		if !pageNamePattern.MatchString(name) {
			logger.Warn("template skipped: name not routable", slog.String("file", file))
			continue
		}

		tmpl, err := template.ParseFS(templates, layoutTemplate, file)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
		pages[name] = tmpl
	}
	if _, ok := pages["index"]; !ok {
		return nil, fmt.Errorf("no index.html in template directory")
	}

	logger.Debug("templates loaded", slog.Int("pages", len(pages)))
	return &PageHandler{
		pages:       pages,
		flashes:     flashes,
		defaultYear: defaultYear,
		logger:      logger,
	}, nil
}

// HandlePage serves GET / and GET /{page}.
func (h *PageHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "page")
	if name == "" {
		name = "index"
	}

	tmpl, ok := h.lookup(name)
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}

	id, loggedIn := auth.IdentityFromContext(r.Context())
	data := PageData{
		Page:     name,
		Identity: id,
		LoggedIn: loggedIn,
		IsAdmin:  loggedIn && id.IsAdmin,
		Year:     h.year(r),
	}
	// Popping writes a Set-Cookie header, so it must happen before the body.
	if h.flashes != nil {
		data.Flashes = h.flashes.Pop(w, r)
	}

	// Render into a buffer first so a template error can still become a 500.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (h *PageHandler) lookup(name string) (*template.Template, bool) {
	if !pageNamePattern.MatchString(name) {
		return nil, false
	}
	tmpl, ok := h.pages[name]
	return tmpl, ok
}

// year picks the ?year= query value when it is well formed.
func (h *PageHandler) year(r *http.Request) string {
	if y := r.URL.Query().Get("year"); yearParamPattern.MatchString(y) {
		return y
	}
	return h.defaultYear
}
