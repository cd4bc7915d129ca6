// Package services contains server-side business logic: the credential
// store, the session manager, the request authenticator and the document
// pipeline.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/logging"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/repomanager"
)

// Registration limits.
const (
	MinNameLen     = 3
	MaxNameLen     = 20
	MinPasswordLen = 5
	MaxPasswordLen = 16
)

// UserService is the credential store: registration, password
// authentication and lookups by id.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      PasswordHasher
	log         logging.Logger

	// dummyHash is compared against when the email is unknown, so a miss
	// costs as much as a wrong password.
	dummyHash string
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, hasher PasswordHasher, log logging.Logger) (*UserService, error) {
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &UserService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		log:         log.With("module", "users"),
		dummyHash:   dummy,
	}, nil
}

// NormalizeEmail trims and lower-cases an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(name, email, password string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(name)); n < MinNameLen || n > MaxNameLen {
		return fmt.Errorf("%w: name must be %d-%d characters", common.ErrValidation, MinNameLen, MaxNameLen)
	}
	if n := utf8.RuneCountInString(password); n < MinPasswordLen || n > MaxPasswordLen {
		return fmt.Errorf("%w: password must be %d-%d characters", common.ErrValidation, MinPasswordLen, MaxPasswordLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email address", common.ErrValidation)
	}
	return nil
}

// Register validates and stores a new user. The raw password is only ever
// passed to the hasher.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if err := validateRegistration(name, email, password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Name: strings.TrimSpace(name), Email: email, PasswordHash: hash}
	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrDuplicateEmail
		}
		return nil, storeFailure(err)
	}

	s.log.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Authenticate returns the user owning email when password matches.
// Unknown email, wrong password and inactive account are indistinguishable:
// all return common.ErrAuthFailure.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = s.hasher.Compare(s.dummyHash, password)
			return nil, common.ErrAuthFailure
		}
		return nil, storeFailure(err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, common.ErrAuthFailure
	}
	if !user.IsActive {
		return nil, common.ErrAuthFailure
	}
	return user, nil
}

// GetByID returns common.ErrUserNotFound when no such user exists.
func (s *UserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, storeFailure(err)
	}
	return user, nil
}

// storeFailure tags an unexpected persistence error. Already tagged errors
// pass through unchanged.
func storeFailure(err error) error {
	if err == nil || errors.Is(err, common.ErrStoreFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrStoreFailure, err)
}
