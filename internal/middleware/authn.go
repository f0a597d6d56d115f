package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/config"
)

const (
	// authnCacheSize bounds the verified-token cache.
	authnCacheSize = 4096
	// authnCacheTTLCap caps how long a verification result may be reused. A
	// cached entry can outlive its token's exp by at most this much, so it
	// stays small relative to token lifetimes.
	authnCacheTTLCap = time.Minute
)

// AuthnDependencies bundles collaborators required by the bearer middleware.
type AuthnDependencies struct {
	Keys   *auth.KeySet
	Logger *log.Logger
}

// NewAuthnMiddleware verifies bearer access tokens and stores the resolved
// subject on the request context. A request without a bearer token passes
// through anonymously and is left to the per-method policy gates; a bearer
// token that fails verification is refused before dispatch. Verification
// results for hot tokens are cached keyed by the token digest, never the
// token itself.
func NewAuthnMiddleware(cfg *config.Config, deps AuthnDependencies) (func(http.Handler) http.Handler, error) {
	if deps.Keys == nil {
		return nil, errors.New("authn middleware requires a key set")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	ttl := time.Duration(cfg.Tokens.ExpiresIn) * time.Second
	if ttl <= 0 || ttl > authnCacheTTLCap {
		ttl = authnCacheTTLCap
	}
	cache := expirable.NewLRU[string, auth.Subject](authnCacheSize, nil, ttl)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			key := auth.HashToken(raw)
			if subject, ok := cache.Get(key); ok {
				next.ServeHTTP(w, r.WithContext(auth.WithSubject(r.Context(), subject)))
				return
			}

			subject, err := deps.Keys.VerifyAccess(raw)
			if err != nil {
				logger.Debug("bearer token refused", "path", r.URL.Path, "err", err)
				http.Error(w, "invalid access token", http.StatusUnauthorized)
				return
			}
			cache.Add(key, *subject)
			next.ServeHTTP(w, r.WithContext(auth.WithSubject(r.Context(), *subject)))
		})
	}, nil
}

// bearerToken extracts the bearer credential. Authorization headers carrying
// another scheme are treated as absent; only the Bearer scheme engages.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}
