package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

// Flashes carries one-shot notices across a redirect ("registration
// complete", "invalid user id or password"). It uses its own cookie so it
// works the same whichever Sessions implementation is configured.
type Flashes struct {
	store sessions.Store
	name  string
}

// NewFlashes creates a flash store signed with secret. The cookie lives for
// the browser session only.
func NewFlashes(secret []byte, opts CookieOptions) *Flashes {
	store := sessions.NewCookieStore(secret)
	o := opts.sessionOptions()
	o.MaxAge = 0
	store.Options = o
	return &Flashes{store: store, name: opts.Name + "-flash"}
}

// Add queues a notice for the next page render.
func (f *Flashes) Add(w http.ResponseWriter, r *http.Request, message string) error {
	sess, _ := f.store.Get(r, f.name)
	sess.AddFlash(message)
	return sess.Save(r, w)
}

// Pop returns and removes all queued notices.
func (f *Flashes) Pop(w http.ResponseWriter, r *http.Request) []string {
	sess, err := f.store.Get(r, f.name)
	if err != nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	// Persist the removal; on failure the notices just show up again.
	_ = sess.Save(r, w)

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
