package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTSignerRoundTrip(t *testing.T) {
	signer, err := NewEphemeralJWTSigner("test-key")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	in := ports.SessionClaims{
		UserID:    uuid.New(),
		Email:     "ana@example.com",
		Role:      domain.RoleModerator,
		SessionID: uuid.New(),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
	raw, err := signer.Issue(in)
	require.NoError(t, err)

	out, err := signer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.Equal(t, domain.RoleModerator, out.Role)
	assert.Equal(t, in.Email, out.Email)
	assert.True(t, out.ExpiresAt.Equal(in.ExpiresAt))
}

func TestJWTSignerRejectsExpiredAndForeignTokens(t *testing.T) {
	signer, err := NewEphemeralJWTSigner("k1")
	require.NoError(t, err)
	other, err := NewEphemeralJWTSigner("k1")
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	expired, err := signer.Issue(ports.SessionClaims{
		UserID: uuid.New(), SessionID: uuid.New(),
		IssuedAt: past, ExpiresAt: past.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = signer.Verify(expired)
	assert.Error(t, err)

	foreign, err := other.Issue(ports.SessionClaims{
		UserID: uuid.New(), SessionID: uuid.New(),
		IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = signer.Verify(foreign)
	assert.Error(t, err)
}

func TestNewJWTSignerFromPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	signer, err := NewJWTSigner("k", string(privPEM), string(pubPEM))
	require.NoError(t, err)
	jwks := signer.KeySet()
	require.Len(t, jwks, 1)
	assert.Equal(t, "k", jwks[0].KeyID)
	assert.Equal(t, "RS256", jwks[0].Algorithm)
	assert.Equal(t, "AQAB", jwks[0].Exponent)

	_, err = NewJWTSigner("", string(privPEM), "")
	assert.Error(t, err)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherPub := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&otherKey.PublicKey)})
	_, err = NewJWTSigner("k", string(privPEM), string(otherPub))
	assert.Error(t, err)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(4)
	hash, err := h.Hash("Sup3rSecret")
	require.NoError(t, err)
	ok, err := h.Matches(hash, "Sup3rSecret")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.Matches(hash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = h.Matches("not-a-hash", "Sup3rSecret")
	assert.Error(t, err)
}
