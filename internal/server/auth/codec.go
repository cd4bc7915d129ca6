// Package auth implements the signed token format: minting and decoding of
// HS256 JWT access and refresh tokens.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshKeyLabel = "refresh-token"

// Codec mints and decodes tokens. Access and refresh tokens are signed with
// different keys, so one kind can never be passed off as the other.
type Codec struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now for minting and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a Codec. When refreshSecret is empty the refresh key is
// derived from secret with HMAC-SHA256.
func NewCodec(secret, refreshSecret []byte, accessTTL, refreshTTL time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token signing secret is empty")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	c := &Codec{
		accessKey:  secret,
		refreshKey: refreshSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	if len(c.refreshKey) == 0 {
		c.refreshKey = deriveKey(secret, refreshKeyLabel)
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func deriveKey(secret []byte, label string) []byte {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(label))
	return m.Sum(nil)
}

// AccessTTL is the lifetime of minted access tokens.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL is the lifetime of minted refresh tokens.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// MintAccess signs a new access token for user.
func (c *Codec) MintAccess(user *models.User) (string, *AccessClaims, error) {
	iat := c.now().Truncate(time.Second)
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(c.accessTTL)),
		},
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Type:   TypeAccess,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims, nil
}

// MintRefresh signs a new refresh token for user.
func (c *Codec) MintRefresh(user *models.User) (string, *RefreshClaims, error) {
	iat := c.now().Truncate(time.Second)
	claims := &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.Name,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(c.refreshTTL)),
		},
		UserID: user.ID,
		Type:   TypeRefresh,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, claims, nil
}

// Decode verifies the signature of token and returns its claims.
// With verifyExpiry=false an expired token still decodes; the signature is
// checked either way.
//
// Errors: common.ErrBadSignature, common.ErrMalformedToken and, only when
// verifyExpiry is set, common.ErrTokenExpired.
func (c *Codec) Decode(token string, verifyExpiry bool) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if verifyExpiry {
		opts = append(opts, jwt.WithExpirationRequired(), jwt.WithTimeFunc(c.now))
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	wc := &wireClaims{}
	_, err := jwt.ParseWithClaims(token, wc, c.keyFor, opts...)
	if err != nil {
		return nil, mapJWTError(err)
	}

	return wc.typed()
}

// keyFor selects the verification key from the (not yet verified) type claim.
func (c *Codec) keyFor(t *jwt.Token) (any, error) {
	wc, ok := t.Claims.(*wireClaims)
	if !ok {
		return nil, common.ErrMalformedToken
	}
	switch wc.Type {
	case TypeAccess:
		return c.accessKey, nil
	case TypeRefresh:
		return c.refreshKey, nil
	default:
		return nil, common.ErrMalformedToken
	}
}

func (wc *wireClaims) typed() (Claims, error) {
	if wc.ID == "" || wc.ExpiresAt == nil || wc.UserID == nil {
		return nil, common.ErrMalformedToken
	}

	switch wc.Type {
	case TypeAccess:
		return &AccessClaims{
			RegisteredClaims: wc.RegisteredClaims,
			UserID:           *wc.UserID,
			Email:            wc.Email,
			Name:             wc.Name,
			Type:             TypeAccess,
		}, nil
	case TypeRefresh:
		return &RefreshClaims{
			RegisteredClaims: wc.RegisteredClaims,
			UserID:           *wc.UserID,
			Type:             TypeRefresh,
		}, nil
	default:
		return nil, common.ErrMalformedToken
	}
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, common.ErrMalformedToken):
		return common.ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return common.ErrBadSignature
	default:
		return fmt.Errorf("%w: %v", common.ErrMalformedToken, err)
	}
}

// Fingerprint returns the hex SHA-256 digest of an encoded token. The ledger
// stores a bcrypt hash of this digest, keeping input under bcrypt's 72-byte limit.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
