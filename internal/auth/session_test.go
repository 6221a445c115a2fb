package auth

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndAuthenticate(t *testing.T) {
	keys, err := NewKeys(time.Hour)
	require.NoError(t, err)

	token, err := keys.CreateJWT("scorekeeper")
	require.NoError(t, err)

	sub, err := keys.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "scorekeeper", sub)
}

func TestAuthenticateRejectsForeignKey(t *testing.T) {
	a, err := NewKeys(0)
	require.NoError(t, err)
	b, err := NewKeys(0)
	require.NoError(t, err)

	token, err := a.CreateJWT("scorekeeper")
	require.NoError(t, err)
	_, err = b.AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestAuthenticateRejectsExpired(t *testing.T) {
	keys, err := NewKeys(0)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub": "scorekeeper",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := token.SignedString(keys.privateKey)
	require.NoError(t, err)

	_, err = keys.AuthenticateJWT(signed)
	assert.Error(t, err)
}

func TestAuthenticateRejectsHMAC(t *testing.T) {
	keys, err := NewKeys(0)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = keys.AuthenticateJWT(signed)
	assert.Error(t, err)
}

func TestParseExpireTime(t *testing.T) {
	for _, s := range []string{"", "0", "never"} {
		d, err := ParseExpireTime(s)
		require.NoError(t, err)
		assert.Zero(t, d, s)
	}
	d, err := ParseExpireTime("72h")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, d)

	_, err = ParseExpireTime("three days")
	assert.Error(t, err)
}

func TestLoadKeys(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "jwt.key")
	pubPath := filepath.Join(dir, "jwt.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o644))

	signer, err := LoadKeys(privPath, pubPath, 0)
	require.NoError(t, err)
	token, err := signer.CreateJWT("watcher")
	require.NoError(t, err)

	verifier, err := LoadKeys("", pubPath, 0)
	require.NoError(t, err)
	sub, err := verifier.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "watcher", sub)

	_, err = verifier.CreateJWT("watcher")
	assert.Error(t, err, "verify-only keys cannot sign")

	_, err = LoadKeys("", filepath.Join(dir, "missing.pub"), 0)
	assert.Error(t, err)
}
