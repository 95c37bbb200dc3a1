// Package model defines the data structures used throughout the application.
package model

// User is a registered account.
//
// UserID is the login name chosen at registration; it is unique and never
// changes. PasswordHash is a bcrypt hash and is never serialized.
type User struct {
	ID           int64  `json:"id"      db:"id"`
	UserID       string `json:"userId"  db:"user_id"`
	PasswordHash string `json:"-"       db:"user_pw"`
	IsAdmin      bool   `json:"isAdmin" db:"is_admin"`
}
