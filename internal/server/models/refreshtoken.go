package models

import "time"

// RefreshToken is the ledger record of an issued refresh token. The token
// itself is never stored, only TokenHash.
type RefreshToken struct {
	ID        int64
	UserID    int64
	JTI       string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Active reports whether the record is unrevoked and unexpired at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
