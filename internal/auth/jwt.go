// Package auth provides password hashing, session handling and the
// admin guard for the photo gallery.
//
// Two session mechanisms implement the same Sessions interface:
//
//   - CookieSessions: the identity lives in a signed gorilla/sessions cookie.
//   - TokenSessions: the identity lives in a signed JWT in an HttpOnly cookie.
//
// Both are stateless on the server: logout deletes the cookie.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const tokenIssuer = "photo-gallery"

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and token
// lifetime. The secret should be at least 32 bytes of random data in production.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token lifetime must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// claims is the JWT payload: "sub" holds the user id, "adm" the admin flag
// and "jti" a unique token id.
type claims struct {
	Admin bool `json:"adm"`
	jwt.RegisteredClaims
}

// Generate creates and signs a token for id, valid for the service's lifetime.
func (s *TokenService) Generate(id Identity) (string, error) {
	return s.GenerateWithDuration(id, s.ttl)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Used in tests to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(id Identity, d time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Admin: id.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token and returns the identity it carries.
//
// Only HS256 is accepted (jwt.WithValidMethods), which blocks the "alg: none"
// and algorithm-confusion attacks.
func (s *TokenService) Validate(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("auth: token expired")
		}
		return Identity{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("auth: token has no subject")
	}

	return Identity{UserID: c.Subject, IsAdmin: c.Admin}, nil
}

// TokenSessions keeps the identity in a JWT cookie.
type TokenSessions struct {
	tokens *TokenService
	opts   CookieOptions
}

// NewTokenSessions creates JWT-backed sessions. The cookie's MaxAge matches
// the token lifetime.
func NewTokenSessions(tokens *TokenService, opts CookieOptions) *TokenSessions {
	opts.MaxAge = tokens.ttl
	return &TokenSessions{tokens: tokens, opts: opts}
}

func (t *TokenSessions) Current(r *http.Request) (Identity, bool) {
	cookie, err := r.Cookie(t.opts.Name)
	if err != nil {
		return Identity{}, false
	}
	id, err := t.tokens.Validate(cookie.Value)
	if err != nil {
		return Identity{}, false
	}
	return id, true
}

func (t *TokenSessions) Establish(w http.ResponseWriter, r *http.Request, id Identity) error {
	tokenStr, err := t.tokens.Generate(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, t.cookie(tokenStr, int(t.opts.MaxAge.Seconds())))
	return nil
}

func (t *TokenSessions) Clear(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, t.cookie("", -1))
	return nil
}

func (t *TokenSessions) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     t.opts.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   t.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

var _ Sessions = (*TokenSessions)(nil)
