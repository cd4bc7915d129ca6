package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access from refresh tokens via the "type" claim.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Claims is the decoded payload of a token. It is either *AccessClaims or
// *RefreshClaims; switch on the concrete type or on Kind.
type Claims interface {
	Kind() TokenType
	// TokenID returns the jti.
	TokenID() string
	// Owner returns the user_id claim.
	Owner() int64
	// Expiry returns the exp claim.
	Expiry() time.Time

	sealed()
}

// AccessClaims authorize API calls. The registered ID field carries the jti.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID int64     `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Type   TokenType `json:"type"`
}

func (c *AccessClaims) Kind() TokenType   { return TypeAccess }
func (c *AccessClaims) TokenID() string   { return c.ID }
func (c *AccessClaims) Owner() int64      { return c.UserID }
func (c *AccessClaims) Expiry() time.Time { return c.ExpiresAt.Time }
func (c *AccessClaims) sealed()           {}

// RefreshClaims allow minting a new pair. Subject carries the user name.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID int64     `json:"user_id"`
	Type   TokenType `json:"type"`
}

func (c *RefreshClaims) Kind() TokenType   { return TypeRefresh }
func (c *RefreshClaims) TokenID() string   { return c.ID }
func (c *RefreshClaims) Owner() int64      { return c.UserID }
func (c *RefreshClaims) Expiry() time.Time { return c.ExpiresAt.Time }
func (c *RefreshClaims) sealed()           {}

// wireClaims is the union of both payloads, used while the type is unknown.
// Pointer fields distinguish missing claims from zero values.
type wireClaims struct {
	jwt.RegisteredClaims
	UserID *int64    `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Type   TokenType `json:"type"`
}
