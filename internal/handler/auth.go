package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/photo-gallery/internal/apperror"
	"github.com/sakif/photo-gallery/internal/auth"
	"github.com/sakif/photo-gallery/internal/service"
)

// AuthHandler manages registration, login and logout.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account, then send the browser to /login
//   - HandleLogin    → verify credentials and establish the session
//   - HandleLogout   → clear the session
//   - HandleMe       → return the current identity as JSON
//
// Every form action ends in a redirect (Post/Redirect/Get); outcomes are
// reported through flash notices shown on the next page.
type AuthHandler struct {
	users    *service.AuthService
	sessions auth.Sessions
	flashes  *auth.Flashes
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here.
func NewAuthHandler(
	users *service.AuthService,
	sessions auth.Sessions,
	flashes *auth.Flashes,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		flashes:  flashes,
		logger:   logger,
	}
}

// HandleRegister creates a non-admin account.
//
// HTTP: POST /register
// FORM: user_id, user_pw, user_pw_confirm
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	_, err := h.users.Register(r.Context(),
		r.PostFormValue("user_id"),
		r.PostFormValue("user_pw"),
		r.PostFormValue("user_pw_confirm"),
	)
	if err != nil {
		h.flash(w, r, h.registerFailure(err))
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}

	h.flash(w, r, "Registration complete. Please log in.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) registerFailure(err error) string {
	var appErr *apperror.AppError
	switch {
	case errors.Is(err, apperror.ErrConflict):
		return "That user id is already taken."
	case errors.As(err, &appErr):
		return appErr.Message
	default:
		h.logger.Error("registration failed", slog.String("error", err.Error()))
		return "Registration failed. Please try again."
	}
}

// HandleLogin establishes a session.
//
// HTTP: POST /login
// FORM: user_id, user_pw
//
// Any credential problem produces the same notice, whichever part was wrong.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	id, err := h.users.Login(r.Context(), r.PostFormValue("user_id"), r.PostFormValue("user_pw"))
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			h.flash(w, r, err.Error())
		} else {
			h.logger.Error("login failed", slog.String("error", err.Error()))
			h.flash(w, r, "Login failed. Please try again.")
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := h.sessions.Establish(w, r, id); err != nil {
		h.logger.Error("failed to establish session",
			slog.String("userID", id.UserID),
			slog.String("error", err.Error()),
		)
		h.flash(w, r, "Login failed. Please try again.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session. Logging out twice is harmless.
//
// HTTP: GET /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(w, r); err != nil {
		h.logger.Warn("failed to clear session", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// meResponse is the JSON shape of HandleMe.
type meResponse struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

// HandleMe returns the identity of the current session.
//
// HTTP: GET /api/me
//
//	200 {"user_id":"alice","is_admin":false}
//	401 anonymous
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "not logged in",
		})
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserID: id.UserID, IsAdmin: id.IsAdmin})
}

func (h *AuthHandler) flash(w http.ResponseWriter, r *http.Request, msg string) {
	if h.flashes == nil {
		return
	}
	if err := h.flashes.Add(w, r, msg); err != nil {
		h.logger.Warn("failed to queue flash", slog.String("error", err.Error()))
	}
}
