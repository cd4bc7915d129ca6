// Package blacklist stores access tokens invalidated before their expiry.
package blacklist

import (
	"context"
	"time"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
)

type Repository interface {
	// Add inserts the record unless its jti is already present. It reports
	// whether a row was inserted; a duplicate is not an error.
	Add(ctx context.Context, token *models.BlacklistedToken) (bool, error)
	Contains(ctx context.Context, jti string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
