package auth

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken marks tokens that failed verification, as opposed to
// infrastructure failures.
var ErrInvalidToken = errors.New("invalid token")

// ErrUnknownProvider is returned when no key is registered for a provider
// label.
var ErrUnknownProvider = errors.New("unknown identity provider")

// SecretLength is the size in bytes of refresh-token signing secrets.
const SecretLength = 64

var (
	accessMethods  = []string{jwt.SigningMethodES256.Alg()}
	refreshMethods = []string{jwt.SigningMethodHS256.Alg()}
)

// MintAccess issues an ES256 access token for the account.
func (ks *KeySet) MintAccess(accountID, audience string, ttl time.Duration) (string, error) {
	if ks.SigningKey == nil {
		return "", fmt.Errorf("signing key is not loaded")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    ks.Issuer,
		Audience:  jwt.ClaimStrings{audience},
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(ks.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// VerifyAccess checks an access token against the service verification key.
func (ks *KeySet) VerifyAccess(raw string) (*Subject, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return ks.VerifyKey, nil },
		jwt.WithValidMethods(accessMethods),
		jwt.WithIssuer(ks.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return subjectFromClaims(claims), nil
}

// MintRefresh issues an HS256 refresh token signed with the given secret.
// Refresh tokens carry no expiry; they die when the secret rotates.
func (ks *KeySet) MintRefresh(accountID, audience string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("refresh secret is empty")
	}
	claims := jwt.RegisteredClaims{
		Issuer:   ks.Issuer,
		Audience: jwt.ClaimStrings{audience},
		Subject:  accountID,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return token, nil
}

// VerifyRefresh checks a refresh token against the account's current secret.
func (ks *KeySet) VerifyRefresh(raw string, secret []byte) (*Subject, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: no signing secret", ErrInvalidToken)
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods(refreshMethods),
		jwt.WithIssuer(ks.Issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return subjectFromClaims(claims), nil
}

// VerifyClientToken checks a provider-signed token against every key
// registered under the label and returns its sub claim. Each key expects its
// own issuer; exp must be present.
func (ks *KeySet) VerifyClientToken(raw, label string) (string, error) {
	keys := ks.ProviderKeys(label)
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, label)
	}
	var lastErr error
	for _, pk := range keys {
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims,
			func(*jwt.Token) (any, error) { return pk.Key, nil },
			jwt.WithValidMethods(accessMethods),
			jwt.WithIssuer(pk.Issuer),
			jwt.WithExpirationRequired(),
		)
		if err == nil {
			if claims.Subject == "" {
				return "", fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
			}
			return claims.Subject, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrInvalidToken, lastErr)
}

// MintClientToken signs a client token the way an identity provider would:
// ES256 with the provider's key, iss set to the provider issuer and sub to the
// provider-side subject. Operator tooling uses it to exercise the retrieve
// flow without a real provider.
func MintClientToken(key *ecdsa.PrivateKey, issuer, subject string, ttl time.Duration) (string, error) {
	if key == nil {
		return "", fmt.Errorf("provider key is nil")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign client token: %w", err)
	}
	return token, nil
}

// DecodeUnverified extracts the sub claim without checking the signature.
// Callers must still verify the token before trusting it.
func DecodeUnverified(raw string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(raw, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	return sub, nil
}

// NewSecret draws a fresh refresh-token signing secret.
func NewSecret() ([]byte, error) {
	secret := make([]byte, SecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("draw secret: %w", err)
	}
	return secret, nil
}

// HashToken creates a SHA256 hash of a token string.
func HashToken(token string) string {
	hasher := sha256.New()
	hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}

func subjectFromClaims(claims *jwt.RegisteredClaims) *Subject {
	s := &Subject{AccountID: claims.Subject}
	if len(claims.Audience) > 0 {
		s.Audience = claims.Audience[0]
	}
	return s
}
