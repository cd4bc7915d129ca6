package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/dbx"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (user_id, jti, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		token.UserID, token.JTI, token.TokenHash, token.CreatedAt, token.ExpiresAt).Scan(&token.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, jti string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, jti, token_hash, created_at, expires_at, revoked
		FROM refresh_tokens
		WHERE jti = $1
	`
	t := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, jti).Scan(
		&t.ID, &t.UserID, &t.JTI, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) IsValid(ctx context.Context, jti string, userID int64, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM refresh_tokens
			WHERE jti = $1 AND user_id = $2 AND NOT revoked AND expires_at > $3
		)
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, jti, userID, now).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, jti string, userID int64) (bool, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE jti = $1 AND user_id = $2 AND NOT revoked
	`
	n, err := r.exec(ctx, query, jti, userID)
	return n > 0, err
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE user_id = $1 AND NOT revoked
	`
	return r.exec(ctx, query, userID)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
	`
	return r.exec(ctx, query, before)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
