package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeyClaims are the claims carried by a client API key. Subject is the
// client's UUID.
type KeyClaims struct {
	jwt.RegisteredClaims
}

// KeyManager issues and validates client API keys as HS256 JWTs with a
// bounded lifetime.
type KeyManager struct {
	secret   []byte
	lifetime time.Duration
}

func NewKeyManager(secret string, lifetime time.Duration) *KeyManager {
	return &KeyManager{secret: []byte(secret), lifetime: lifetime}
}

// Issue signs a new API key for the given client ID.
func (m *KeyManager) Issue(clientID string) (string, error) {
	now := time.Now()
	claims := KeyClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
			Issuer:    "relaygate",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing API key: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies an API key, returning its claims.
func (m *KeyManager) Validate(tokenStr string) (*KeyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &KeyClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing API key: %w", err)
	}

	claims, ok := token.Claims.(*KeyClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid API key claims")
	}

	return claims, nil
}

func (m *KeyManager) Lifetime() time.Duration {
	return m.lifetime
}
