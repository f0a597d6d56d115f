package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/services/iam"
)

// grantTypeClientCredentials is the only grant the token endpoint accepts.
const grantTypeClientCredentials = "client_credentials"

type retrieveTokenRequest struct {
	GrantType   string `json:"grant_type"`
	ClientToken string `json:"client_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// decodeRetrieveRequest reads the token request from either a JSON or a
// form-urlencoded body, matching what OAuth-ish clients send.
func decodeRetrieveRequest(r *http.Request) (retrieveTokenRequest, error) {
	var req retrieveTokenRequest
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.GrantType = r.PostForm.Get("grant_type")
		req.ClientToken = r.PostForm.Get("client_token")
		if raw := r.PostForm.Get("expires_in"); raw != "" {
			expiresIn, err := strconv.Atoi(raw)
			if err != nil {
				return req, errors.New("expires_in must be an integer")
			}
			req.ExpiresIn = expiresIn
		}
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

// HandleRetrieveToken exchanges a provider-signed client token for an access
// and refresh token pair. The {client} path segment is the
// "{provider}.{label}" pair the token was issued under.
func HandleRetrieveToken(svc iam.Service, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := chi.URLParam(r, "client")

		req, err := decodeRetrieveRequest(r)
		if err != nil {
			writeHTTPError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if req.GrantType != grantTypeClientCredentials {
			writeHTTPError(w, http.StatusBadRequest, "unsupported grant_type")
			return
		}
		if req.ClientToken == "" {
			writeHTTPError(w, http.StatusBadRequest, "client_token is required")
			return
		}

		grant, err := svc.RetrieveToken(r.Context(), client, req.ClientToken, req.ExpiresIn)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, grant)
	}
}

type refreshTokenRequest struct {
	ExpiresIn int `json:"expires_in"`
}

// refreshCredential pulls the refresh token from the Authorization header.
// A request without any Authorization header is anonymous and forbidden; a
// header with another scheme or an empty credential is unauthorized.
func refreshCredential(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		writeHTTPError(w, http.StatusForbidden, "authorization required")
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		writeHTTPError(w, http.StatusUnauthorized, "malformed authorization header")
		return "", false
	}
	return token, true
}

// decodeRefreshRequest reads the optional body. An empty body is a request
// with default lifetime.
func decodeRefreshRequest(r *http.Request) (refreshTokenRequest, error) {
	var req refreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

// HandleRefreshToken mints a fresh access token against the refresh token
// presented as the bearer credential. The {id} path segment is the account id
// or "me", which resolves through the refresh token's own subject.
func HandleRefreshToken(svc iam.Service, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		token, ok := refreshCredential(w, r)
		if !ok {
			return
		}
		req, err := decodeRefreshRequest(r)
		if err != nil {
			writeHTTPError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		grant, err := svc.RefreshToken(r.Context(), id, token, req.ExpiresIn)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, grant)
	}
}

// HandleRevokeToken rotates the account's refresh secret, killing every
// refresh token issued before the call, and returns a replacement.
func HandleRevokeToken(svc iam.Service, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		token, ok := refreshCredential(w, r)
		if !ok {
			return
		}

		grant, err := svc.RevokeToken(r.Context(), id, token)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, grant)
	}
}

// HandleKeys serves the JWKS document for the access-token verification key,
// so relying services can verify tokens without sharing PEM files.
func HandleKeys(keys *auth.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, keys.JWKS())
	}
}
