// Package auth verifies bearer credentials handed to the engine by the
// upstream authentication layer. Credential issuance (login, registration)
// happens upstream; the engine only resolves a signed token to an owner id.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/theworldofobi/mini-dropbox/internal/common"
)

// Claims carries the registered claims plus the owner id the token was
// issued for.
type Claims struct {
	jwt.RegisteredClaims
	OwnerID string
}

// GenerateToken mints an HS256 token for ownerID. Used by the upstream auth
// layer and by tests; the engine itself only verifies.
func GenerateToken(ownerID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		OwnerID: ownerID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetOwnerIDFromToken parses and verifies tokenString and returns the owner
// id it was issued for.
func GetOwnerIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.OwnerID, nil
}
