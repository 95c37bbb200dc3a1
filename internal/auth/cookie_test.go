package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCookieSessions() *CookieSessions {
	return NewCookieSessions(testSecret, CookieOptions{Name: "session", MaxAge: time.Hour})
}

// carryCookies copies the Set-Cookie headers of rec onto a new request,
// the way a browser would on the next navigation.
func carryCookies(rec *httptest.ResponseRecorder, method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			continue
		}
		req.AddCookie(c)
	}
	return req
}

func TestCookieSessions_AnonymousByDefault(t *testing.T) {
	s := newTestCookieSessions()

	_, ok := s.Current(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestCookieSessions_EstablishThenCurrent(t *testing.T) {
	s := newTestCookieSessions()

	rec := httptest.NewRecorder()
	err := s.Establish(rec, httptest.NewRequest(http.MethodPost, "/login", nil), Identity{UserID: "alice", IsAdmin: true})
	require.NoError(t, err)

	id, ok := s.Current(carryCookies(rec, http.MethodGet, "/"))
	require.True(t, ok)
	assert.Equal(t, Identity{UserID: "alice", IsAdmin: true}, id)
}

func TestCookieSessions_TamperedCookieIsAnonymous(t *testing.T) {
	s := newTestCookieSessions()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "forged"})

	_, ok := s.Current(req)
	assert.False(t, ok)
}

func TestCookieSessions_OtherSecretIsAnonymous(t *testing.T) {
	s := newTestCookieSessions()
	other := NewCookieSessions([]byte("ffffffffffffffffffffffffffffffff"), CookieOptions{Name: "session", MaxAge: time.Hour})

	rec := httptest.NewRecorder()
	require.NoError(t, other.Establish(rec, httptest.NewRequest(http.MethodPost, "/login", nil), Identity{UserID: "mallory", IsAdmin: true}))

	_, ok := s.Current(carryCookies(rec, http.MethodGet, "/"))
	assert.False(t, ok)
}

func TestCookieSessions_ClearIsIdempotent(t *testing.T) {
	s := newTestCookieSessions()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		require.NoError(t, s.Clear(rec, httptest.NewRequest(http.MethodGet, "/logout", nil)))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Less(t, cookies[0].MaxAge, 0, "Clear() should expire the cookie")
	}
}

func TestFlashes_PopConsumes(t *testing.T) {
	f := NewFlashes(testSecret, CookieOptions{Name: "session"})

	rec := httptest.NewRecorder()
	require.NoError(t, f.Add(rec, httptest.NewRequest(http.MethodPost, "/register", nil), "registered"))

	req := carryCookies(rec, http.MethodGet, "/login")
	rec2 := httptest.NewRecorder()
	assert.Equal(t, []string{"registered"}, f.Pop(rec2, req))

	// A fresh request with the cookie written by Pop has nothing left.
	assert.Empty(t, f.Pop(httptest.NewRecorder(), carryCookies(rec2, http.MethodGet, "/login")))
}
