package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("session: invalid token")

// tokenClaims mirrors the JWT the backend's auth issues on login.
type tokenClaims struct {
	DisplayName         string          `json:"name"`
	Roles               []string        `json:"roles"`
	Permissions         map[string]bool `json:"perms"`
	ForcePasswordChange bool            `json:"force_password_change"`
	jwt.RegisteredClaims
}

// ParseToken validates an HMAC-signed session token and builds a Record
// from its claims.
func ParseToken(tokenStr string, secret []byte) (*Record, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Record{
		UserID:              claims.Subject,
		DisplayName:         claims.DisplayName,
		Roles:               claims.Roles,
		Permissions:         claims.Permissions,
		ForcePasswordChange: claims.ForcePasswordChange,
		UpdatedAt:           time.Now(),
	}, nil
}

// SignToken issues a session token. Used by the backend login handler and
// by tests.
func SignToken(rec *Record, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		DisplayName:         rec.DisplayName,
		Roles:               rec.Roles,
		Permissions:         rec.Permissions,
		ForcePasswordChange: rec.ForcePasswordChange,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rec.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
