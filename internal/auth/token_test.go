package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func newTestKeySet(t *testing.T) *KeySet {
	t.Helper()
	key := generateKey(t)
	return &KeySet{
		SigningKey: key,
		VerifyKey:  &key.PublicKey,
		Issuer:     "iam.test",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	ks := newTestKeySet(t)

	token, err := ks.MintAccess("account-1", "example.services", 5*time.Minute)
	require.NoError(t, err)

	subject, err := ks.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "account-1", subject.AccountID)
	assert.Equal(t, "example.services", subject.Audience)
}

func TestVerifyAccessRejections(t *testing.T) {
	ks := newTestKeySet(t)

	t.Run("foreign key", func(t *testing.T) {
		other := newTestKeySet(t)
		token, err := other.MintAccess("account-1", "aud", time.Minute)
		require.NoError(t, err)

		_, err = ks.VerifyAccess(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := ks.MintAccess("account-1", "aud", -time.Minute)
		require.NoError(t, err)

		_, err = ks.VerifyAccess(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		foreign := &KeySet{SigningKey: ks.SigningKey, VerifyKey: ks.VerifyKey, Issuer: "someone.else"}
		token, err := foreign.MintAccess("account-1", "aud", time.Minute)
		require.NoError(t, err)

		_, err = ks.VerifyAccess(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("symmetric algorithm refused", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Issuer:    ks.Issuer,
			Subject:   "account-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("guessable"))
		require.NoError(t, err)

		_, err = ks.VerifyAccess(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ks.VerifyAccess("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	ks := newTestKeySet(t)
	secret, err := NewSecret()
	require.NoError(t, err)
	require.Len(t, secret, SecretLength)

	token, err := ks.MintRefresh("account-1", "example.services", secret)
	require.NoError(t, err)

	subject, err := ks.VerifyRefresh(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "account-1", subject.AccountID)
	assert.Equal(t, "example.services", subject.Audience)

	t.Run("carries no expiry", func(t *testing.T) {
		claims := jwt.MapClaims{}
		_, _, err := new(jwt.Parser).ParseUnverified(token, claims)
		require.NoError(t, err)
		_, hasExp := claims["exp"]
		assert.False(t, hasExp)
	})

	t.Run("dies on rotation", func(t *testing.T) {
		rotated, err := NewSecret()
		require.NoError(t, err)

		_, err = ks.VerifyRefresh(token, rotated)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := ks.VerifyRefresh(token, nil)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestDecodeUnverified(t *testing.T) {
	ks := newTestKeySet(t)
	token, err := ks.MintAccess("account-1", "aud", time.Minute)
	require.NoError(t, err)

	sub, err := DecodeUnverified(token)
	require.NoError(t, err)
	assert.Equal(t, "account-1", sub)

	_, err = DecodeUnverified("junk")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyClientToken(t *testing.T) {
	ks := newTestKeySet(t)

	provider := generateKey(t)
	providerSet := &KeySet{SigningKey: provider, VerifyKey: &provider.PublicKey, Issuer: "idp.example.org"}
	ks.AddProvider(ProviderKey{Label: "example-org", Issuer: "idp.example.org", Key: &provider.PublicKey})

	token, err := providerSet.MintAccess("external-uid", "iam.test", time.Minute)
	require.NoError(t, err)

	t.Run("accepted", func(t *testing.T) {
		sub, err := ks.VerifyClientToken(token, "example-org")
		require.NoError(t, err)
		assert.Equal(t, "external-uid", sub)
	})

	t.Run("unknown label", func(t *testing.T) {
		_, err := ks.VerifyClientToken(token, "nobody")
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		crooked := &KeySet{SigningKey: provider, VerifyKey: &provider.PublicKey, Issuer: "idp.evil.org"}
		badToken, err := crooked.MintAccess("external-uid", "iam.test", time.Minute)
		require.NoError(t, err)

		_, err = ks.VerifyClientToken(badToken, "example-org")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("second key under the same label", func(t *testing.T) {
		next := generateKey(t)
		ks.AddProvider(ProviderKey{Label: "example-org", Issuer: "idp.example.org", Key: &next.PublicKey})
		nextSet := &KeySet{SigningKey: next, Issuer: "idp.example.org"}

		rotated, err := nextSet.MintAccess("external-uid", "iam.test", time.Minute)
		require.NoError(t, err)

		sub, err := ks.VerifyClientToken(rotated, "example-org")
		require.NoError(t, err)
		assert.Equal(t, "external-uid", sub)
	})
}

func TestMintClientToken(t *testing.T) {
	ks := newTestKeySet(t)
	provider := generateKey(t)
	ks.AddProvider(ProviderKey{Label: "example-org", Issuer: "idp.example.org", Key: &provider.PublicKey})

	token, err := MintClientToken(provider, "idp.example.org", "external-uid", time.Minute)
	require.NoError(t, err)

	sub, err := ks.VerifyClientToken(token, "example-org")
	require.NoError(t, err)
	assert.Equal(t, "external-uid", sub)

	t.Run("expired", func(t *testing.T) {
		stale, err := MintClientToken(provider, "idp.example.org", "external-uid", -time.Minute)
		require.NoError(t, err)

		_, err = ks.VerifyClientToken(stale, "example-org")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("nil key", func(t *testing.T) {
		_, err := MintClientToken(nil, "idp.example.org", "external-uid", time.Minute)
		assert.Error(t, err)
	})
}

func TestFingerprint(t *testing.T) {
	a := generateKey(t)
	b := generateKey(t)

	fpA := Fingerprint(&a.PublicKey)
	assert.Len(t, fpA, 16)
	assert.Equal(t, fpA, Fingerprint(&a.PublicKey))
	assert.NotEqual(t, fpA, Fingerprint(&b.PublicKey))

	secret, err := NewSecret()
	require.NoError(t, err)
	assert.Len(t, FingerprintSecret(secret), 16)
}
