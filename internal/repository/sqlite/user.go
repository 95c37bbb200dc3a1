package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/photo-gallery/internal/apperror"
	"github.com/sakif/photo-gallery/internal/model"
	"github.com/sakif/photo-gallery/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Create inserts a new user and fills in user.ID.
//
// Uniqueness of user_id is enforced by the UNIQUE constraint, not by a
// SELECT-then-INSERT: two concurrent registrations for the same id race on
// the constraint and exactly one wins. The loser gets apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO user (user_id, user_pw, is_admin) VALUES (?, ?, ?)`,
		user.UserID,
		user.PasswordHash,
		user.IsAdmin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.UserID)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.UserID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading id of user %s: %w", user.UserID, err)
	}
	user.ID = id
	return nil
}

// GetByUserID retrieves a user by login name.
// Returns apperror.ErrNotFound if no user exists with that id.
func (db *DB) GetByUserID(ctx context.Context, userID string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, user_pw, is_admin FROM user WHERE user_id = ?`,
		userID,
	).Scan(&u.ID, &u.UserID, &u.PasswordHash, &u.IsAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", userID, err)
	}

	return &u, nil
}

// SetAdmin sets or clears the admin flag.
// Returns apperror.ErrNotFound if no user exists with that id.
func (db *DB) SetAdmin(ctx context.Context, userID string, isAdmin bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE user SET is_admin = ? WHERE user_id = ?`,
		isAdmin, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", userID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
