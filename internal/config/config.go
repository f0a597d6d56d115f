package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the service configuration.
type Config struct {
	// Server bind address (host:port)
	ListenAddr string

	// Database connection string (DSN)
	DatabaseURL string

	// Maximum database connection pool size
	MaxDBConnections int

	// Enable debug logging
	Debug bool

	// IAMNamespaceID is the namespace that governs the service's own API.
	// Every guarded operation is checked against policies in this namespace.
	IAMNamespaceID string

	Authentication AuthenticationConfig
	Tokens         TokensConfig
	Pagination     PaginationConfig
	Expansion      ExpansionConfig

	// Providers lists the trusted identity providers whose client tokens are
	// accepted at the token endpoint.
	Providers []Provider
}

// AuthenticationConfig points at the key verifying inbound bearer tokens.
type AuthenticationConfig struct {
	// Keyfile is a PEM file with the ES256 public key. A private key file
	// also works; its public half is used.
	Keyfile string
}

// TokensConfig controls the tokens the service issues.
type TokensConfig struct {
	// Keyfile is a PEM file with the ES256 private key signing access tokens.
	Keyfile string

	// Issuer is the iss claim on minted access tokens.
	Issuer string

	// ExpiresIn is the default access-token lifetime in seconds.
	ExpiresIn int

	// ExpiresInMax caps the lifetime a client may request, in seconds.
	ExpiresInMax int
}

// PaginationConfig bounds list responses.
type PaginationConfig struct {
	Limit    int
	LimitMax int
}

// ExpansionConfig bounds the attribute closure walk.
type ExpansionConfig struct {
	MaxDepth int
	MaxRows  int
}

// Provider describes one trusted identity provider. Label is the first
// segment of the token endpoint path, Issuer the expected iss claim, and
// Keyfile a PEM file with the provider's ES256 public key. The same label
// may appear more than once when a provider rotates keys.
type Provider struct {
	Label   string `mapstructure:"label"`
	Issuer  string `mapstructure:"issuer"`
	Keyfile string `mapstructure:"keyfile"`
}

// Load reads configuration from iam.{yaml,toml,json} in the working
// directory or /etc/iam, overridden by IAM_ prefixed environment variables.
// The providers list can only come from the file.
func Load() (*Config, error) {
	viper.SetConfigName("iam")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/iam")

	viper.SetEnvPrefix("IAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr:       viper.GetString("listen_addr"),
		DatabaseURL:      viper.GetString("database_url"),
		MaxDBConnections: viper.GetInt("max_db_connections"),
		Debug:            viper.GetBool("debug"),
		IAMNamespaceID:   viper.GetString("iam_namespace_id"),
		Authentication: AuthenticationConfig{
			Keyfile: viper.GetString("authentication.keyfile"),
		},
		Tokens: TokensConfig{
			Keyfile:      viper.GetString("tokens.keyfile"),
			Issuer:       viper.GetString("tokens.issuer"),
			ExpiresIn:    viper.GetInt("tokens.expires_in"),
			ExpiresInMax: viper.GetInt("tokens.expires_in_max"),
		},
		Pagination: PaginationConfig{
			Limit:    viper.GetInt("pagination.limit"),
			LimitMax: viper.GetInt("pagination.limit_max"),
		},
		Expansion: ExpansionConfig{
			MaxDepth: viper.GetInt("expansion.max_depth"),
			MaxRows:  viper.GetInt("expansion.max_rows"),
		},
	}

	if err := viper.UnmarshalKey("providers", &cfg.Providers); err != nil {
		return nil, fmt.Errorf("parse providers: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required")
	}
	if cfg.IAMNamespaceID == "" {
		return nil, fmt.Errorf("iam_namespace_id is required")
	}
	if cfg.Tokens.ExpiresIn <= 0 {
		return nil, fmt.Errorf("tokens.expires_in must be positive")
	}
	if cfg.Tokens.ExpiresIn > cfg.Tokens.ExpiresInMax {
		return nil, fmt.Errorf("tokens.expires_in exceeds tokens.expires_in_max")
	}
	if cfg.Pagination.Limit > cfg.Pagination.LimitMax {
		return nil, fmt.Errorf("pagination.limit exceeds pagination.limit_max")
	}
	for i, p := range cfg.Providers {
		if p.Label == "" || p.Issuer == "" || p.Keyfile == "" {
			return nil, fmt.Errorf("providers[%d]: label, issuer and keyfile are all required", i)
		}
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("database_url", "sqlite://iam.db")
	viper.SetDefault("max_db_connections", 25)
	viper.SetDefault("debug", false)
	viper.SetDefault("tokens.issuer", "iam.netology-group.services")
	viper.SetDefault("tokens.expires_in", 300)
	viper.SetDefault("tokens.expires_in_max", 86400)
	viper.SetDefault("pagination.limit", 25)
	viper.SetDefault("pagination.limit_max", 100)
	viper.SetDefault("expansion.max_depth", 16)
	viper.SetDefault("expansion.max_rows", 1024)
}
