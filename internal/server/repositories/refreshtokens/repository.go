// Package refreshtokens declares the refresh-token ledger contract and its
// PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
)

// Repository records issued refresh tokens and their revocation state.
type Repository interface {
	// Create stores a new record and fills its ID.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Find looks up a record by jti. Absent records yield common.ErrorNotFound.
	Find(ctx context.Context, jti string) (*models.RefreshToken, error)

	// IsValid reports whether a record for (jti, userID) exists, is not
	// revoked and has not expired at now.
	IsValid(ctx context.Context, jti string, userID int64, now time.Time) (bool, error)

	// Revoke marks the (jti, userID) record revoked. It reports whether this
	// call changed the flag; revoking twice is not an error.
	Revoke(ctx context.Context, jti string, userID int64) (bool, error)

	// RevokeAllForUser revokes every active record of userID and returns how many changed.
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)

	// DeleteExpired removes records that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
