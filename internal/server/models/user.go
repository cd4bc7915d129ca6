// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a registered account. Email is stored trimmed and lower-cased.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	IsActive     bool
	IsVerified   bool
	CreatedAt    time.Time
}
