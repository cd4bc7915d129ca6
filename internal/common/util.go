package common

import (
	"crypto/rand"
	"encoding/hex"
)

// BearerScheme is the Authorization header scheme carrying access tokens,
// both on HTTP requests and in gRPC metadata.
const BearerScheme = "Bearer"

// AuthorizationHeaderName is the HTTP header / gRPC metadata key holding the bearer token.
const AuthorizationHeaderName = "authorization"

// MakeRandHexString returns size random bytes encoded as hex, so the result
// is 2*size characters long.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
