package services

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes secrets for storage and checks candidates against them.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	// Compare returns nil when secret matches hash.
	Compare(hash, secret string) error
}

// BcryptHasher is a PasswordHasher backed by bcrypt with a fixed cost.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *BcryptHasher) Compare(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return errMismatch
	}
	return err
}

var errMismatch = errors.New("secret does not match hash")
