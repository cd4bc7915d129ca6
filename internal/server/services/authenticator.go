package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/auth"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/repomanager"
)

// UnauthorizedError rejects a request credential. It matches both
// common.ErrorUnauthorized and the underlying cause with errors.Is.
type UnauthorizedError struct {
	Reason string
	Err    error
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + e.Reason
}

func (e *UnauthorizedError) Unwrap() []error {
	if e.Err == nil {
		return []error{common.ErrorUnauthorized}
	}
	return []error{common.ErrorUnauthorized, e.Err}
}

func unauthorized(reason string, err error) error {
	return &UnauthorizedError{Reason: reason, Err: err}
}

// Authenticator resolves the user behind an access token on every protected call.
type Authenticator struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	users       *UserService
	codec       *auth.Codec
}

func NewAuthenticator(db *sql.DB, m repomanager.RepositoryManager, users *UserService, codec *auth.Codec) *Authenticator {
	return &Authenticator{db: db, repomanager: m, users: users, codec: codec}
}

// Authenticate accepts an unexpired, non-blacklisted access token of an
// existing active user.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, unauthorized("missing token", nil)
	}

	claims, err := a.codec.Decode(token, true)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, unauthorized("token expired", err)
		}
		return nil, unauthorized("invalid token", err)
	}
	ac, ok := claims.(*auth.AccessClaims)
	if !ok {
		return nil, unauthorized("wrong token type", common.ErrWrongTokenType)
	}

	revoked, err := a.repomanager.Blacklist(a.db).Contains(ctx, ac.ID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if revoked {
		return nil, unauthorized("revoked", common.ErrTokenRevoked)
	}

	user, err := a.users.GetByID(ctx, ac.UserID)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, unauthorized("no such user", err)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, unauthorized("inactive user", nil)
	}
	return user, nil
}

type userCtxKey struct{}

// ContextWithUser stores the authenticated user in ctx.
func ContextWithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

// UserFromContext returns the user stored by ContextWithUser.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(*models.User)
	return u, ok && u != nil
}
