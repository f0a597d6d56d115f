package middleware

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/config"
)

func newTestMiddleware(t *testing.T) (*auth.KeySet, func(http.Handler) http.Handler) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	keys := &auth.KeySet{SigningKey: key, VerifyKey: &key.PublicKey, Issuer: "iam.test"}

	cfg := &config.Config{Tokens: config.TokensConfig{ExpiresIn: 300}}
	mw, err := NewAuthnMiddleware(cfg, AuthnDependencies{Keys: keys, Logger: log.New(io.Discard)})
	require.NoError(t, err)
	return keys, mw
}

// probe records the subject the middleware left on the context.
func probe(subject *auth.Subject, seen *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := auth.SubjectFromContext(r.Context())
		*seen = ok
		if ok {
			*subject = s
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthnMiddleware(t *testing.T) {
	keys, mw := newTestMiddleware(t)

	var subject auth.Subject
	var seen bool
	handler := mw(probe(&subject, &seen))

	do := func(authorization string) *httptest.ResponseRecorder {
		seen = false
		subject = auth.Subject{}
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid bearer resolves the subject", func(t *testing.T) {
		token, err := keys.MintAccess("acc-1", "example-org.trusted", time.Minute)
		require.NoError(t, err)

		rec := do("Bearer " + token)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.True(t, seen)
		assert.Equal(t, "acc-1", subject.AccountID)
		assert.Equal(t, "example-org.trusted", subject.Audience)
	})

	t.Run("repeated token is served from the cache", func(t *testing.T) {
		token, err := keys.MintAccess("acc-2", "example-org.trusted", time.Minute)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			rec := do("Bearer " + token)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "acc-2", subject.AccountID)
		}
	})

	t.Run("no header passes through anonymously", func(t *testing.T) {
		rec := do("")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, seen)
	})

	t.Run("other schemes are not bearer tokens", func(t *testing.T) {
		rec := do("Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, seen)
	})

	t.Run("garbage bearer is refused", func(t *testing.T) {
		rec := do("Bearer not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, seen)
	})

	t.Run("expired token is refused", func(t *testing.T) {
		token, err := keys.MintAccess("acc-3", "example-org.trusted", -time.Minute)
		require.NoError(t, err)

		rec := do("Bearer " + token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampering misses the cache and fails verification", func(t *testing.T) {
		token, err := keys.MintAccess("acc-4", "example-org.trusted", time.Minute)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, do("Bearer "+token).Code)

		rec := do("Bearer " + token + "x")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthnMiddlewareRequiresKeys(t *testing.T) {
	cfg := &config.Config{Tokens: config.TokensConfig{ExpiresIn: 300}}
	_, err := NewAuthnMiddleware(cfg, AuthnDependencies{})
	assert.Error(t, err)
}
