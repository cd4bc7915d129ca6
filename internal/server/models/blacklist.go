package models

import "time"

// BlacklistedToken marks an access token as invalid before its natural expiry.
type BlacklistedToken struct {
	ID            int64
	JTI           string
	UserID        int64
	BlacklistedAt time.Time
	ExpiresAt     time.Time
}
