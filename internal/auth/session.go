// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Keys signs and verifies access tokens for the event endpoint.
type Keys struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// ttl is how long a token stays valid (0 => never expires).
	ttl time.Duration
}

// ParseExpireTime reads a TOKEN_EXPIRE_TIME value: "never", "0" or "" disable expiry,
// anything else is a Go duration.
func ParseExpireTime(s string) (time.Duration, error) {
	if s == "never" || s == "0" || s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// NewKeys generates a fresh ed25519 key pair. Tokens signed by it are only valid for the
// lifetime of the process.
func NewKeys(ttl time.Duration) (*Keys, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Keys{privateKey: priv, publicKey: pub, ttl: ttl}, nil
}

// LoadKeys reads raw ed25519 keys from file. An empty private path yields verify-only keys.
func LoadKeys(privatePath, publicPath string, ttl time.Duration) (*Keys, error) {
	k := &Keys{ttl: ttl}
	if privatePath != "" {
		data, err := os.ReadFile(privatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		if len(data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("private key file %s: want %d bytes, got %d", privatePath, ed25519.PrivateKeySize, len(data))
		}
		k.privateKey = ed25519.PrivateKey(data)
	}
	data, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key file %s: want %d bytes, got %d", publicPath, ed25519.PublicKeySize, len(data))
	}
	k.publicKey = ed25519.PublicKey(data)
	return k, nil
}

// CreateJWT signs a token with "sub" = subject and, when a ttl is set, an "exp" claim.
func (k *Keys) CreateJWT(subject string) (string, error) {
	if k.privateKey == nil {
		return "", fmt.Errorf("no private key loaded")
	}
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
	}
	if k.ttl > 0 {
		claims["exp"] = time.Now().Add(k.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(k.privateKey)
}

// AuthenticateJWT verifies a token and returns its subject.
func (k *Keys) AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	subject, err := t.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return subject, nil
}
