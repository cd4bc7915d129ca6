package blacklist

import (
	"context"
	"fmt"
	"time"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/dbx"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Add relies on ON CONFLICT DO NOTHING instead of catching the unique
// violation, which would abort the surrounding transaction.
func (r *PostgresRepository) Add(ctx context.Context, token *models.BlacklistedToken) (bool, error) {
	query := `
		INSERT INTO blacklisted_access_tokens (jti, user_id, blacklisted_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, token.JTI, token.UserID, token.BlacklistedAt, token.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) Contains(ctx context.Context, jti string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM blacklisted_access_tokens WHERE jti = $1)`

	var found bool
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&found); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return found, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM blacklisted_access_tokens WHERE expires_at < $1`

	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
