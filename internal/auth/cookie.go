package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

// CookieOptions controls the cookies issued by the session stores.
type CookieOptions struct {
	Name   string
	MaxAge time.Duration
	Secure bool // set when served over HTTPS
}

func (o CookieOptions) sessionOptions() *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   int(o.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

const (
	sessionUserIDKey  = "user_id"
	sessionIsAdminKey = "is_admin"
)

// CookieSessions stores the identity in a signed, client-held cookie.
type CookieSessions struct {
	store sessions.Store
	name  string
}

// NewCookieSessions creates a cookie session store signed with secret.
func NewCookieSessions(secret []byte, opts CookieOptions) *CookieSessions {
	store := sessions.NewCookieStore(secret)
	store.Options = opts.sessionOptions()
	return &CookieSessions{store: store, name: opts.Name}
}

// Current returns the identity held in the session cookie. A missing,
// expired or tampered cookie is treated as anonymous.
func (c *CookieSessions) Current(r *http.Request) (Identity, bool) {
	sess, err := c.store.Get(r, c.name)
	if err != nil {
		return Identity{}, false
	}
	userID, _ := sess.Values[sessionUserIDKey].(string)
	if userID == "" {
		return Identity{}, false
	}
	isAdmin, _ := sess.Values[sessionIsAdminKey].(bool)
	return Identity{UserID: userID, IsAdmin: isAdmin}, true
}

func (c *CookieSessions) Establish(w http.ResponseWriter, r *http.Request, id Identity) error {
	// A decode error just means the old cookie is unusable; Get still
	// returns a fresh session to write into.
	sess, _ := c.store.Get(r, c.name)
	sess.Values = map[interface{}]interface{}{
		sessionUserIDKey:  id.UserID,
		sessionIsAdminKey: id.IsAdmin,
	}
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("auth: saving session: %w", err)
	}
	return nil
}

func (c *CookieSessions) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := c.store.Get(r, c.name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("auth: clearing session: %w", err)
	}
	return nil
}

var _ Sessions = (*CookieSessions)(nil)
