package ports

import (
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
)

// PasswordHasher stores and checks account credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Matches reports false for a wrong password. The error is reserved for a corrupt hash.
	Matches(hash, password string) (bool, error)
}

// SessionClaims is what a bearer token says about its session.
type SessionClaims struct {
	UserID    uuid.UUID
	Email     string
	Role      domain.Role
	SessionID uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// JWK is the public half of a signing key as published to other services.
type JWK struct {
	KeyID     string `json:"kid"`
	KeyType   string `json:"kty"`
	Algorithm string `json:"alg"`
	Use       string `json:"use"`
	Modulus   string `json:"n"`
	Exponent  string `json:"e"`
}

type TokenSigner interface {
	Issue(claims SessionClaims) (string, error)
	Verify(token string) (SessionClaims, error)
	KeySet() []JWK
}
