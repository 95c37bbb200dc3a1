package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photo-gallery/internal/auth"
	"github.com/sakif/photo-gallery/internal/config"
	"github.com/sakif/photo-gallery/internal/model"
	"github.com/sakif/photo-gallery/internal/service"
)

func testConfig(t *testing.T, sessionDriver string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Storage.Dir = t.TempDir()
	cfg.Session.Driver = sessionDriver
	cfg.Session.Secret = "server-test-secret-0123456789"
	cfg.DefaultYear = "2025"
	require.NoError(t, cfg.Validate())
	return cfg
}

// newTestServer starts the full router and returns a client that keeps
// cookies and does not follow redirects.
func newTestServer(t *testing.T, cfg config.Config) (*Server, *httptest.Server, *http.Client) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return s, ts, client
}

func postForm(t *testing.T, client *http.Client, target string, form url.Values) *http.Response {
	t.Helper()
	resp, err := client.PostForm(target, form)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func uploadFiles(t *testing.T, client *http.Client, target, year string, files map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("year", year))
	for name, content := range files {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		part.Write([]byte(content))
	}
	require.NoError(t, mw.Close())

	resp, err := client.Post(target, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func listPhotos(t *testing.T, client *http.Client, base, year string) []model.Photo {
	t.Helper()
	resp, err := client.Get(base + "/api/photos/" + year)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var photos []model.Photo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&photos))
	return photos
}

func del(t *testing.T, client *http.Client, target string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, target, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

// TestServer_Flow walks the anonymous → registered → admin lifecycle once
// per session driver.
func TestServer_Flow(t *testing.T) {
	for _, driver := range []string{config.SessionDriverCookie, config.SessionDriverJWT} {
		t.Run(driver, func(t *testing.T) {
			cfg := testConfig(t, driver)
			s, ts, client := newTestServer(t, cfg)

			// Pages render from the embedded templates.
			resp, err := client.Get(ts.URL + "/")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			resp, err = client.Get(ts.URL + "/does-not-exist")
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			assert.Equal(t, "page not found\n", string(body))

			// Static assets are served.
			resp, err = client.Get(ts.URL + "/static/js/photo.js")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			// Register, then log in as a regular user.
			resp = postForm(t, client, ts.URL+"/register", url.Values{
				"user_id": {"bob"}, "user_pw": {"password123"}, "user_pw_confirm": {"password123"},
			})
			assert.Equal(t, "/login", resp.Header.Get("Location"))

			resp = postForm(t, client, ts.URL+"/login", url.Values{"user_id": {"bob"}, "user_pw": {"password123"}})
			assert.Equal(t, "/", resp.Header.Get("Location"))

			// A regular user cannot upload or delete.
			resp = uploadFiles(t, client, ts.URL+"/upload", "2024", map[string]string{"a.png": "x"})
			assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
			assert.Empty(t, listPhotos(t, client, ts.URL, "2024"))
			resp = del(t, client, ts.URL+"/api/photos/2024/a.png")
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)

			// An admin created out of band can.
			admins := service.NewAuthService(s.db, auth.NewPasswordServiceForTest(4), slog.New(slog.NewTextHandler(io.Discard, nil)))
			_, err = admins.CreateUser(context.Background(), "root", "rootpassword", true)
			require.NoError(t, err)

			resp, err = client.Get(ts.URL + "/logout")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, "/", resp.Header.Get("Location"))

			resp = postForm(t, client, ts.URL+"/login", url.Values{"user_id": {"root"}, "user_pw": {"rootpassword"}})
			require.Equal(t, "/", resp.Header.Get("Location"))

			resp = uploadFiles(t, client, ts.URL+"/upload", "2024", map[string]string{"a.png": "png-bytes", "b.exe": "MZ"})
			assert.Equal(t, "/photo?year=2024", resp.Header.Get("Location"))

			photos := listPhotos(t, client, ts.URL, "2024")
			require.Len(t, photos, 1)

			resp, err = client.Get(ts.URL + photos[0].URL)
			require.NoError(t, err)
			content, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			assert.Equal(t, "png-bytes", string(content))
			assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

			resp = del(t, client, ts.URL+"/api/photos/2024/"+photos[0].Filename)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			resp = del(t, client, ts.URL+"/api/photos/2024/"+photos[0].Filename)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			assert.Empty(t, listPhotos(t, client, ts.URL, "2024"))
		})
	}
}

func TestNewSessions(t *testing.T) {
	cfg := testConfig(t, config.SessionDriverCookie).Session

	sess, err := newSessions(cfg)
	require.NoError(t, err)
	assert.IsType(t, &auth.CookieSessions{}, sess)

	cfg.Driver = config.SessionDriverJWT
	sess, err = newSessions(cfg)
	require.NoError(t, err)
	assert.IsType(t, &auth.TokenSessions{}, sess)

	cfg.Driver = "memcached"
	_, err = newSessions(cfg)
	assert.Error(t, err)
}

func TestNewPhotoStore_UnknownDriver(t *testing.T) {
	_, err := newPhotoStore(context.Background(), config.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)
}

func TestNew_BadTemplateDir(t *testing.T) {
	cfg := testConfig(t, config.SessionDriverCookie)
	cfg.TemplateDir = t.TempDir() // no index.html

	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "page handler"), err.Error())
}
