// Authentication business logic.
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt)
//
// The service knows nothing about cookies or sessions: Login returns the
// identity to establish, and the handler hands it to auth.Sessions.

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/photo-gallery/internal/apperror"
	"github.com/sakif/photo-gallery/internal/auth"
	"github.com/sakif/photo-gallery/internal/model"
	"github.com/sakif/photo-gallery/internal/repository"
)

const (
	MinPasswordLength = 8
	MaxUserIDLength   = 64
)

// AuthService handles registration, login and admin management.
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// Register creates a non-admin account.
//
// Errors:
//   - apperror.ErrValidation: empty/overlong user id, password shorter than
//     MinPasswordLength, or confirmation mismatch
//   - apperror.ErrConflict: user id already taken
func (s *AuthService) Register(ctx context.Context, userID, password, confirm string) (*model.User, error) {
	return s.create(ctx, userID, password, confirm, false)
}

// CreateUser creates an account with the given admin flag. It is the CLI's
// way to bootstrap the first admin; the HTTP surface only uses Register.
func (s *AuthService) CreateUser(ctx context.Context, userID, password string, isAdmin bool) (*model.User, error) {
	return s.create(ctx, userID, password, password, isAdmin)
}

func (s *AuthService) create(ctx context.Context, userID, password, confirm string, isAdmin bool) (*model.User, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("user_id", "user id is required")
	}
	// User ids are stored exactly as submitted and never change afterwards.
	if strings.TrimSpace(userID) != userID {
		return nil, apperror.ValidationFailed("user_id", "user id must not start or end with whitespace")
	}
	if len(userID) > MaxUserIDLength {
		return nil, apperror.ValidationFailed("user_id",
			fmt.Sprintf("user id must be %d characters or fewer", MaxUserIDLength))
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("user_pw",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if password != confirm {
		return nil, apperror.ValidationFailed("user_pw_confirm", "passwords do not match")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		// Only the 72-byte bcrypt limit can fail here.
		return nil, apperror.ValidationFailed("user_pw", "password must be 72 bytes or fewer")
	}

	user := &model.User{
		UserID:       userID,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user %s: %w", userID, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.UserID),
		slog.Bool("isAdmin", user.IsAdmin),
	)
	return user, nil
}

// Login verifies credentials and returns the identity to put in the session.
//
// An unknown user id and a wrong password produce the same
// apperror.InvalidCredentials error, and the unknown-user path still spends
// a bcrypt comparison so timing does not reveal which ids exist.
func (s *AuthService) Login(ctx context.Context, userID, password string) (auth.Identity, error) {
	user, err := s.users.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.VerifyNothing(password)
			s.logger.Info("login failed", slog.String("userID", userID))
			return auth.Identity{}, apperror.InvalidCredentials()
		}
		return auth.Identity{}, fmt.Errorf("service/auth: looking up %s: %w", userID, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			// Corrupt hash in the table: log it, but the caller still only
			// learns that the credentials were invalid.
			s.logger.Error("password verification failed",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
		}
		s.logger.Info("login failed", slog.String("userID", userID))
		return auth.Identity{}, apperror.InvalidCredentials()
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.UserID),
		slog.Bool("isAdmin", user.IsAdmin),
	)
	return auth.Identity{UserID: user.UserID, IsAdmin: user.IsAdmin}, nil
}

// SetAdmin grants or revokes the admin flag.
// Existing sessions keep the flag they were issued with until the next login.
func (s *AuthService) SetAdmin(ctx context.Context, userID string, isAdmin bool) error {
	if err := s.users.SetAdmin(ctx, userID, isAdmin); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/auth: updating admin flag of %s: %w", userID, err)
	}

	s.logger.Info("admin flag changed",
		slog.String("userID", userID),
		slog.Bool("isAdmin", isAdmin),
	)
	return nil
}
