package handler_test

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photo-gallery/internal/auth"
	"github.com/sakif/photo-gallery/internal/handler"
	"github.com/sakif/photo-gallery/internal/repository/filesystem"
	"github.com/sakif/photo-gallery/internal/repository/sqlite"
	"github.com/sakif/photo-gallery/internal/service"
)

const testSecret = "handler-test-secret-0123456789"

var testTemplates = fstest.MapFS{
	"base.html": {Data: []byte(`{{define "base"}}<title>{{.Page}}</title>` +
		`{{range .Flashes}}<p class="flash">{{.}}</p>{{end}}` +
		`{{if .LoggedIn}}<span id="who">{{.Identity.UserID}}{{if .IsAdmin}} admin{{end}}</span>{{end}}` +
		`{{template "content" .}}{{end}}`)},
	"index.html": {Data: []byte(`{{define "content"}}home{{end}}`)},
	"photo.html": {Data: []byte(`{{define "content"}}year={{.Year}}{{end}}`)},
	"login.html": {Data: []byte(`{{define "content"}}login form{{end}}`)},
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv is a router with every handler wired to real services over
// throwaway storage.
type testEnv struct {
	router     *chi.Mux
	uploadRoot string
	authSvc    *service.AuthService
	sessions   auth.Sessions
	flashes    *auth.Flashes
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	root := t.TempDir()
	store, err := filesystem.New(root)
	require.NoError(t, err)

	opts := auth.CookieOptions{Name: "gallery_session", MaxAge: time.Hour}
	sessions := auth.NewCookieSessions([]byte(testSecret), opts)
	flashes := auth.NewFlashes([]byte(testSecret), opts)

	authSvc := service.NewAuthService(db, auth.NewPasswordServiceForTest(4), logger)
	photoSvc := service.NewPhotoService(store, service.RealClock{}, logger)

	pages, err := handler.NewPageHandler(testTemplates, flashes, "2026", logger)
	require.NoError(t, err)
	photos := handler.NewPhotoHandler(photoSvc, flashes, "2026", 1<<20, logger)
	users := handler.NewAuthHandler(authSvc, sessions, flashes, logger)

	r := chi.NewRouter()
	r.Use(auth.LoadIdentity(sessions))
	r.Get("/", pages.HandlePage)
	r.Get("/{page}", pages.HandlePage)
	r.Post("/register", users.HandleRegister)
	r.Post("/login", users.HandleLogin)
	r.Get("/logout", users.HandleLogout)
	r.Get("/uploads/{year}/{filename}", photos.HandleServe)
	r.With(auth.RequireAdminRedirect(func(*http.Request) string { return handler.GalleryURL("2026") })).
		Post("/upload", photos.HandleUpload)
	r.Get("/api/me", users.HandleMe)
	r.Get("/api/photos/{year}", photos.HandleList)
	r.With(auth.RequireAdminAPI).Delete("/api/photos/{year}/{filename}", photos.HandleDelete)

	return &testEnv{
		router:     r,
		uploadRoot: root,
		authSvc:    authSvc,
		sessions:   sessions,
		flashes:    flashes,
	}
}

// do runs req through the router, sending cookies along.
func (e *testEnv) do(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// login creates the user if needed and returns its session cookies.
func (e *testEnv) login(t *testing.T, userID string, admin bool) []*http.Cookie {
	t.Helper()
	_, err := e.authSvc.CreateUser(t.Context(), userID, "password123", admin)
	require.NoError(t, err)

	rr := e.do(formRequest("/login", map[string]string{"user_id": userID, "user_pw": "password123"}), nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/", rr.Header().Get("Location"))
	return rr.Result().Cookies()
}

func formRequest(target string, fields map[string]string) *http.Request {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// multipartRequest builds a POST /upload with the given files.
func multipartRequest(t *testing.T, year string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if year != "" {
		require.NoError(t, mw.WriteField("year", year))
	}
	for name, content := range files {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// flashesAfter reads the notices a response queued by replaying its cookies.
func (e *testEnv) flashesAfter(rr *httptest.ResponseRecorder) []string {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	return e.flashes.Pop(httptest.NewRecorder(), req)
}
