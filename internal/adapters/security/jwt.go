package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

const (
	tokenIssuer   = "remlyo-api"
	clockLeeway   = 30 * time.Second
	ephemeralBits = 2048
)

// JWTSigner issues RS256 bearer tokens for sessions.
type JWTSigner struct {
	kid string
	key *rsa.PrivateKey
}

// remlyoClaims is the token body. The subject is the user id.
type remlyoClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	SID   string `json:"sid"`
	jwt.RegisteredClaims
}

// NewJWTSigner loads the signing key from PEM. publicKeyPEM is optional and, when given, must
// belong to the private key.
func NewJWTSigner(kid, privateKeyPEM, publicKeyPEM string) (*JWTSigner, error) {
	if kid == "" {
		return nil, errors.New("jwt key id is required")
	}
	key, err := decodePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("jwt private key: %w", err)
	}
	if publicKeyPEM != "" {
		pub, err := decodePublicKey(publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("jwt public key: %w", err)
		}
		if !key.PublicKey.Equal(pub) {
			return nil, errors.New("jwt public key does not belong to the private key")
		}
	}
	return &JWTSigner{kid: kid, key: key}, nil
}

// NewEphemeralJWTSigner signs with a key generated at startup, so tokens die with the process.
func NewEphemeralJWTSigner(kid string) (*JWTSigner, error) {
	if kid == "" {
		kid = "ephemeral"
	}
	key, err := rsa.GenerateKey(rand.Reader, ephemeralBits)
	if err != nil {
		return nil, err
	}
	return &JWTSigner{kid: kid, key: key}, nil
}

func (s *JWTSigner) Issue(c ports.SessionClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, remlyoClaims{
		Email: c.Email,
		Role:  string(c.Role),
		SID:   c.SessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   c.UserID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	})
	token.Header["kid"] = s.kid
	return token.SignedString(s.key)
}

func (s *JWTSigner) Verify(raw string) (ports.SessionClaims, error) {
	var body remlyoClaims
	_, err := jwt.ParseWithClaims(raw, &body, s.keyFor,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return ports.SessionClaims{}, err
	}

	out := ports.SessionClaims{
		Email:     body.Email,
		Role:      domain.Role(body.Role),
		ExpiresAt: body.ExpiresAt.Time.UTC(),
	}
	if out.UserID, err = uuid.Parse(body.Subject); err != nil {
		return ports.SessionClaims{}, fmt.Errorf("token subject: %w", err)
	}
	if out.SessionID, err = uuid.Parse(body.SID); err != nil {
		return ports.SessionClaims{}, fmt.Errorf("token sid: %w", err)
	}
	if body.IssuedAt != nil {
		out.IssuedAt = body.IssuedAt.Time.UTC()
	}
	return out, nil
}

func (s *JWTSigner) keyFor(token *jwt.Token) (any, error) {
	if kid, _ := token.Header["kid"].(string); kid != "" && kid != s.kid {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return &s.key.PublicKey, nil
}

// KeySet publishes the verification key.
func (s *JWTSigner) KeySet() []ports.JWK {
	pub := s.key.PublicKey
	return []ports.JWK{{
		KeyID:     s.kid,
		KeyType:   "RSA",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
		Modulus:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		Exponent:  base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}
}

func pemBlock(raw string) ([]byte, error) {
	if raw == "" {
		return nil, errors.New("empty PEM")
	}
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	return block.Bytes, nil
}

// decodePrivateKey accepts PKCS#1 and PKCS#8 encodings.
func decodePrivateKey(raw string) (*rsa.PrivateKey, error) {
	der, err := pemBlock(raw)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	if key, ok := parsed.(*rsa.PrivateKey); ok {
		return key, nil
	}
	return nil, fmt.Errorf("expected an RSA key, got %T", parsed)
}

// decodePublicKey accepts PKCS#1 and PKIX encodings.
func decodePublicKey(raw string) (*rsa.PublicKey, error) {
	der, err := pemBlock(raw)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	if key, ok := parsed.(*rsa.PublicKey); ok {
		return key, nil
	}
	return nil, fmt.Errorf("expected an RSA key, got %T", parsed)
}
