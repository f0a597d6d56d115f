package auth

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/btcsuite/btcutil/base58"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ivanovaleksey/iam-sub000/internal/config"
)

// ProviderKey is one trusted verification key for provider-signed client
// tokens. A label may carry several keys; verification tries each in turn.
type ProviderKey struct {
	Label  string
	Issuer string
	Key    *ecdsa.PublicKey
}

// KeySet bundles the service's own signing and verification keys together
// with the trusted provider keys.
type KeySet struct {
	SigningKey *ecdsa.PrivateKey
	VerifyKey  *ecdsa.PublicKey
	Issuer     string

	providers []ProviderKey
}

// LoadKeySet reads every key the server needs from the files named in cfg.
func LoadKeySet(cfg *config.Config) (*KeySet, error) {
	if cfg.Tokens.Keyfile == "" {
		return nil, fmt.Errorf("tokens.keyfile is not configured")
	}
	if cfg.Authentication.Keyfile == "" {
		return nil, fmt.Errorf("authentication.keyfile is not configured")
	}

	signingKey, err := loadPrivateKey(cfg.Tokens.Keyfile)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	verifyKey, err := loadPublicKey(cfg.Authentication.Keyfile)
	if err != nil {
		return nil, fmt.Errorf("load verification key: %w", err)
	}

	ks := &KeySet{
		SigningKey: signingKey,
		VerifyKey:  verifyKey,
		Issuer:     cfg.Tokens.Issuer,
	}
	for _, p := range cfg.Providers {
		key, err := loadPublicKey(p.Keyfile)
		if err != nil {
			return nil, fmt.Errorf("load key for provider %s: %w", p.Label, err)
		}
		ks.AddProvider(ProviderKey{Label: p.Label, Issuer: p.Issuer, Key: key})
	}
	return ks, nil
}

// AddProvider registers a trusted provider key.
func (ks *KeySet) AddProvider(p ProviderKey) {
	ks.providers = append(ks.providers, p)
}

// ProviderKeys returns the keys registered under the label, in registration
// order.
func (ks *KeySet) ProviderKeys(label string) []ProviderKey {
	var keys []ProviderKey
	for _, p := range ks.providers {
		if p.Label == label {
			keys = append(keys, p)
		}
	}
	return keys
}

func loadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse EC private key: %w", err)
	}
	return key, nil
}

// loadPublicKey accepts a public-key PEM, falling back to the public half of
// a private-key PEM so both files may point at the same key pair.
func loadPublicKey(path string) (*ecdsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if key, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return key, nil
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse EC public key: %w", err)
	}
	return &key.PublicKey, nil
}

// EncodePrivateKey renders the key as an EC PRIVATE KEY PEM block, the format
// loadPrivateKey reads back.
func EncodePrivateKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal EC private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKey renders the key as a PKIX PUBLIC KEY PEM block.
func EncodePublicKey(key *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Fingerprint derives a short stable identifier for a public key. It doubles
// as the kid in the JWKS document.
func Fingerprint(key *ecdsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(der)
	return base58.Encode(hash[:])[:16]
}

// FingerprintSecret derives a short identifier for a symmetric secret so key
// rotations can be logged without exposing the secret itself.
func FingerprintSecret(secret []byte) string {
	hash := sha256.Sum256(secret)
	return base58.Encode(hash[:])[:16]
}

// JWKS builds the key set of every public key bearer tokens may be checked
// against: the service's own verification key first, then provider keys.
func (ks *KeySet) JWKS() jose.JSONWebKeySet {
	var set jose.JSONWebKeySet
	if ks.VerifyKey != nil {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       ks.VerifyKey,
			KeyID:     Fingerprint(ks.VerifyKey),
			Algorithm: string(jose.ES256),
			Use:       "sig",
		})
	}
	for _, p := range ks.providers {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       p.Key,
			KeyID:     Fingerprint(p.Key),
			Algorithm: string(jose.ES256),
			Use:       "sig",
		})
	}
	return set
}
