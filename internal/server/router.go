package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/services/iam"
	"github.com/ivanovaleksey/iam-sub000/internal/telemetry"
)

// requestTimeout bounds a single request end to end. Expansion work is capped
// well below this; the timeout exists for stuck connections.
const requestTimeout = 60 * time.Second

// RouterOptions controls the construction of the HTTP router. Service is
// required; the rest is optional and defaulted where sensible.
type RouterOptions struct {
	Service       iam.Service
	Keys          *auth.KeySet
	Logger        *log.Logger
	Metrics       *telemetry.Metrics
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the permissive cross-origin policy. The RPC
// surface authenticates by bearer token, not cookies, so reflecting any
// origin is safe.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, the
// RPC dispatcher at the root and the token lifecycle endpoints mounted. The
// authentication middleware is passed through Middleware and wraps the RPC
// route only: token endpoints present refresh tokens as their bearer
// credential, which the access-token verifier must not intercept.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	health := opts.HealthHandler
	if health == nil {
		health = defaultHealthHandler
	}
	r.Get("/health", health)

	if opts.Keys != nil {
		r.Get("/keys", HandleKeys(opts.Keys))
	}

	rpc := NewRPC(opts.Service, opts.Logger, opts.Metrics)
	var rpcMiddleware []func(http.Handler) http.Handler
	for _, mw := range opts.Middleware {
		if mw != nil {
			rpcMiddleware = append(rpcMiddleware, mw)
		}
	}
	r.With(rpcMiddleware...).Post("/", rpc.ServeHTTP)

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	r.Post("/auth/{client}/token", HandleRetrieveToken(opts.Service, logger))
	r.Post("/accounts/{id}/refresh", HandleRefreshToken(opts.Service, logger))
	r.Post("/accounts/{id}/revoke", HandleRevokeToken(opts.Service, logger))

	return r
}

// NewH2CHandler wraps the router for HTTP/2 over cleartext, so callers behind
// a TLS-terminating proxy still get multiplexed connections.
func NewH2CHandler(router chi.Router) http.Handler {
	return h2c.NewHandler(router, &http2.Server{})
}
