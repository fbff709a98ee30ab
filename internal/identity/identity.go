// Package identity resolves who the current session writes as. Staff
// terminals carry an operator token; its name claim becomes the default
// handled-by / recorded-by value on writes. This is identification, not
// authorization — the daemon trusts its network boundary.
package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tallyhouse/tally/internal/storage"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims carries the operator fields embedded in a session token.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// FromToken validates the token against the shared secret and returns the
// identity it names.
func FromToken(tokenString, secret string) (storage.Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return storage.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Name == "" {
		return storage.Identity{}, ErrInvalidToken
	}
	return storage.Identity{DisplayName: claims.Name}, nil
}

// Token mints a signed operator token, used by tooling and tests.
func Token(name, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Name: name})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
