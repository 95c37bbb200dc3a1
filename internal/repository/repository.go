// Package repository declares the storage contracts the services depend on.
// Concrete implementations live in the sub-packages (sqlite, filesystem, s3).
package repository

import (
	"context"
	"io"

	"github.com/sakif/photo-gallery/internal/model"
)

// UserRepository stores user credentials.
//
// Create must return an error matching apperror.ErrConflict when the user_id
// is already taken, and GetByUserID one matching apperror.ErrNotFound when
// no such user exists.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByUserID(ctx context.Context, userID string) (*model.User, error)
	SetAdmin(ctx context.Context, userID string, isAdmin bool) error
}

// PhotoStore is a year-keyed blob store for uploaded images.
//
// Names passed in are already sanitized by the caller. List returns an empty
// slice (not an error) for a year that has never been written to.
type PhotoStore interface {
	List(ctx context.Context, year string) ([]model.Photo, error)
	Put(ctx context.Context, year, name string, r io.Reader) (model.Photo, error)
	Delete(ctx context.Context, year, name string) (bool, error)
	Open(ctx context.Context, year, name string) (io.ReadCloser, error)
}

// PhotoURL is the public path a stored photo is served from.
func PhotoURL(year, name string) string {
	return "/uploads/" + year + "/" + name
}
