package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/dbx"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/logging"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/auth"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/repomanager"
)

// TokenTypeBearer is the token_type reported with every issued pair.
const TokenTypeBearer = "bearer"

// TokenPair bundles a short-lived access token and a long-lived refresh token.
// ExpiresIn is the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}

// LogoutResult reports what a logout managed to invalidate. The access token
// is always blacklisted when Logout returns without error; AlreadyLoggedOut
// is set when it was blacklisted before.
type LogoutResult struct {
	UserID           int64
	AlreadyLoggedOut bool
	RefreshRevoked   bool
}

// SessionService issues, rotates and revokes token pairs.
//
// A user has at most one active refresh token: login and refresh revoke every
// other active token of the user in the same transaction that records the
// new one, under a row lock on the user.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	users       *UserService
	codec       *auth.Codec
	hasher      PasswordHasher
	log         logging.Logger
	now         func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, users *UserService, codec *auth.Codec,
	hasher PasswordHasher, log logging.Logger) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		users:       users,
		codec:       codec,
		hasher:      hasher,
		log:         log.With("module", "sessions"),
		now:         time.Now,
	}
}

// Login authenticates the user and starts a new session.
func (s *SessionService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	pair, err := s.issue(ctx, user, nil)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "session started", "user_id", user.ID)
	return pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is returned. A token can be exchanged at most once, and never by a
// deactivated user.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.Decode(refreshToken, true)
	if err != nil {
		return nil, err
	}
	rc, ok := claims.(*auth.RefreshClaims)
	if !ok {
		return nil, common.ErrWrongTokenType
	}

	if err := s.checkRecorded(ctx, rc, refreshToken); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, rc.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, common.ErrRevokedOrExpired
	}

	pair, err := s.issue(ctx, user, rc)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "refresh token rotated", "user_id", user.ID, "old_jti", rc.ID)
	return pair, nil
}

// checkRecorded verifies that the ledger holds an active record for the token
// and that the record was issued for exactly this token.
func (s *SessionService) checkRecorded(ctx context.Context, rc *auth.RefreshClaims, token string) error {
	repo := s.repomanager.RefreshTokens(s.db)

	valid, err := repo.IsValid(ctx, rc.ID, rc.UserID, s.now())
	if err != nil {
		return storeFailure(err)
	}
	if !valid {
		return common.ErrRevokedOrExpired
	}

	rec, err := repo.Find(ctx, rc.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrRevokedOrExpired
		}
		return storeFailure(err)
	}
	if err := s.hasher.Compare(rec.TokenHash, auth.Fingerprint(token)); err != nil {
		s.log.Warn(ctx, "refresh token does not match its ledger record", "user_id", rc.UserID, "jti", rc.ID)
		return common.ErrRevokedOrExpired
	}
	return nil
}

// issue mints a pair for user and records the refresh token. When rotating
// is set, that token must still be unrevoked inside the transaction.
func (s *SessionService) issue(ctx context.Context, user *models.User, rotating *auth.RefreshClaims) (*TokenPair, error) {
	access, _, err := s.codec.MintAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, rclaims, err := s.codec.MintRefresh(user)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(auth.Fingerprint(refresh))
	if err != nil {
		return nil, fmt.Errorf("hash refresh token: %w", err)
	}

	record := &models.RefreshToken{
		UserID:    user.ID,
		JTI:       rclaims.ID,
		TokenHash: hash,
		CreatedAt: rclaims.IssuedAt.Time,
		ExpiresAt: rclaims.ExpiresAt.Time,
	}

	err = dbx.WithTx(ctx, s.db, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).LockByID(ctx, user.ID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUserNotFound
			}
			return storeFailure(err)
		}

		tokens := s.repomanager.RefreshTokens(tx)

		if rotating != nil {
			changed, err := tokens.Revoke(ctx, rotating.ID, rotating.UserID)
			if err != nil {
				return storeFailure(err)
			}
			if !changed {
				// a concurrent rotation won the row lock first
				return common.ErrRevokedOrExpired
			}
		}

		if _, err := tokens.RevokeAllForUser(ctx, user.ID); err != nil {
			return storeFailure(err)
		}
		if err := tokens.Create(ctx, record); err != nil {
			return storeFailure(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.codec.AccessTTL() / time.Second),
	}, nil
}

// Logout blacklists the access token, which may already be expired but must
// carry a valid signature. Revoking refreshToken is a separate best-effort
// step: its failure is logged and reported in the result, never returned.
func (s *SessionService) Logout(ctx context.Context, accessToken, refreshToken string) (*LogoutResult, error) {
	claims, err := s.codec.Decode(accessToken, false)
	if err != nil {
		return nil, err
	}
	ac, ok := claims.(*auth.AccessClaims)
	if !ok {
		return nil, common.ErrWrongTokenType
	}

	if _, err := s.users.GetByID(ctx, ac.UserID); err != nil {
		return nil, err
	}

	res := &LogoutResult{UserID: ac.UserID}

	err = dbx.WithTx(ctx, s.db, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		inserted, err := s.repomanager.Blacklist(tx).Add(ctx, &models.BlacklistedToken{
			JTI:           ac.ID,
			UserID:        ac.UserID,
			BlacklistedAt: s.now(),
			ExpiresAt:     ac.ExpiresAt.Time,
		})
		if err != nil {
			return storeFailure(err)
		}
		res.AlreadyLoggedOut = !inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	if refreshToken != "" {
		if err := s.revokeRefresh(ctx, ac.UserID, refreshToken); err != nil {
			s.log.Warn(ctx, "refresh token not revoked on logout", "user_id", ac.UserID, "error", err)
		} else {
			res.RefreshRevoked = true
		}
	}

	s.log.Info(ctx, "session ended", "user_id", ac.UserID, "refresh_revoked", res.RefreshRevoked)
	return res, nil
}

var errRefreshOwner = errors.New("refresh token belongs to another user")

func (s *SessionService) revokeRefresh(ctx context.Context, userID int64, token string) error {
	claims, err := s.codec.Decode(token, true)
	if err != nil {
		return err
	}
	rc, ok := claims.(*auth.RefreshClaims)
	if !ok {
		return common.ErrWrongTokenType
	}
	if rc.UserID != userID {
		return errRefreshOwner
	}

	changed, err := s.repomanager.RefreshTokens(s.db).Revoke(ctx, rc.ID, userID)
	if err != nil {
		return storeFailure(err)
	}
	if !changed {
		return common.ErrRevokedOrExpired
	}
	return nil
}

// Sweep deletes ledger rows that expired before now-grace.
func (s *SessionService) Sweep(ctx context.Context, grace time.Duration) (refresh, blacklisted int64, err error) {
	cutoff := s.now().Add(-grace)

	refresh, err = s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, 0, storeFailure(err)
	}
	blacklisted, err = s.repomanager.Blacklist(s.db).DeleteExpired(ctx, cutoff)
	if err != nil {
		return refresh, 0, storeFailure(err)
	}

	s.log.Info(ctx, "ledger swept", "refresh_deleted", refresh, "blacklist_deleted", blacklisted, "cutoff", cutoff)
	return refresh, blacklisted, nil
}
