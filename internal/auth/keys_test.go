package auth

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanovaleksey/iam-sub000/internal/config"
)

func writePrivatePEM(t *testing.T, dir, name string, key *ecdsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func writePublicPEM(t *testing.T, dir, name string, key *ecdsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	data := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLoadKeySet(t *testing.T) {
	dir := t.TempDir()
	signing := generateKey(t)
	provider := generateKey(t)

	cfg := &config.Config{
		Authentication: config.AuthenticationConfig{
			Keyfile: writePublicPEM(t, dir, "authn.pem", &signing.PublicKey),
		},
		Tokens: config.TokensConfig{
			Keyfile: writePrivatePEM(t, dir, "sign.pem", signing),
			Issuer:  "iam.test",
		},
		Providers: []config.Provider{
			{Label: "example-org", Issuer: "idp.example.org", Keyfile: writePublicPEM(t, dir, "provider.pem", &provider.PublicKey)},
		},
	}

	ks, err := LoadKeySet(cfg)
	require.NoError(t, err)
	assert.Equal(t, "iam.test", ks.Issuer)
	assert.True(t, signing.PublicKey.Equal(ks.VerifyKey))
	require.Len(t, ks.ProviderKeys("example-org"), 1)
	assert.Empty(t, ks.ProviderKeys("unknown"))
}

func TestLoadKeySet_PrivatePEMForVerification(t *testing.T) {
	dir := t.TempDir()
	signing := generateKey(t)
	keyfile := writePrivatePEM(t, dir, "sign.pem", signing)

	cfg := &config.Config{
		Authentication: config.AuthenticationConfig{Keyfile: keyfile},
		Tokens:         config.TokensConfig{Keyfile: keyfile, Issuer: "iam.test"},
	}

	ks, err := LoadKeySet(cfg)
	require.NoError(t, err)
	assert.True(t, signing.PublicKey.Equal(ks.VerifyKey))
}

func TestLoadKeySet_Missing(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		_, err := LoadKeySet(&config.Config{})
		assert.Error(t, err)
	})

	t.Run("absent file", func(t *testing.T) {
		cfg := &config.Config{
			Authentication: config.AuthenticationConfig{Keyfile: "/nonexistent/authn.pem"},
			Tokens:         config.TokensConfig{Keyfile: "/nonexistent/sign.pem"},
		}
		_, err := LoadKeySet(cfg)
		assert.Error(t, err)
	})
}

func TestEncodeKeys(t *testing.T) {
	dir := t.TempDir()
	key := generateKey(t)

	privatePEM, err := EncodePrivateKey(key)
	require.NoError(t, err)
	publicPEM, err := EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)

	// The encoded pair must load back through the same path the server uses.
	privatePath := filepath.Join(dir, "signing.pem")
	publicPath := filepath.Join(dir, "verify.pem")
	require.NoError(t, os.WriteFile(privatePath, privatePEM, 0600))
	require.NoError(t, os.WriteFile(publicPath, publicPEM, 0644))

	loaded, err := loadPrivateKey(privatePath)
	require.NoError(t, err)
	assert.True(t, key.Equal(loaded))

	verify, err := loadPublicKey(publicPath)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(verify))
}

func TestJWKS(t *testing.T) {
	ks := newTestKeySet(t)
	provider := generateKey(t)
	ks.AddProvider(ProviderKey{Label: "example-org", Issuer: "idp.example.org", Key: &provider.PublicKey})

	set := ks.JWKS()
	require.Len(t, set.Keys, 2)
	assert.Equal(t, Fingerprint(ks.VerifyKey), set.Keys[0].KeyID)
	assert.Equal(t, "sig", set.Keys[0].Use)
	assert.Equal(t, "ES256", set.Keys[0].Algorithm)
	assert.Equal(t, Fingerprint(&provider.PublicKey), set.Keys[1].KeyID)
}
