package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. AUTHZ_DATABASE_URL
const EnvPrefix = "AUTHZ"

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OAuth     OAuthConfig
	Auth      AuthConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Sweep     SweepConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Address           string
	BaseURL           string
	TrustProxyHeaders bool
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL           string
	MaxConns      int32
	TxMaxAttempts uint
}

// RedisConfig enables the shared rate limiter when URL is set
type RedisConfig struct {
	URL string
}

// JWTConfig holds bearer signing configuration
type JWTConfig struct {
	PrivateKeyPath    string
	PublicKeyPath     string
	GenerateIfMissing bool
	Issuer            string
	KeyID             string
}

// OAuthConfig holds OAuth-specific configuration
type OAuthConfig struct {
	AuthorizationCodeTTL time.Duration
	DefaultTokenTTL      time.Duration
	MaxTokenTTL          time.Duration
	DeveloperClientID    string
}

// AuthConfig describes how the authenticated end user reaches this server
type AuthConfig struct {
	UserHeader string
}

// SecurityConfig bounds expensive secret verification
type SecurityConfig struct {
	SecretVerifyConcurrency int
}

// RateLimitConfig applies per client IP to /oauth routes. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// SweepConfig controls background deletion of expired codes and tokens.
// Zero disables the background sweeper.
type SweepConfig struct {
	Interval time.Duration
}

// LogConfig controls the process logger
type LogConfig struct {
	Level  string
	Format string
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// SetDefaults registers every key with its default so that environment
// variables bind even when no config file is present.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.trust_proxy_headers", false)
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("database.url", "postgres://oauth@localhost:5432/registry_oauth?sslmode=disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.tx_max_attempts", 5)
	v.SetDefault("redis.url", "")
	v.SetDefault("jwt.private_key_path", "keys/private.pem")
	v.SetDefault("jwt.public_key_path", "keys/public.pem")
	v.SetDefault("jwt.generate_if_missing", false)
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.key_id", "")
	v.SetDefault("oauth.authorization_code_ttl", 10*time.Minute)
	v.SetDefault("oauth.default_token_ttl", 30*24*time.Hour)
	v.SetDefault("oauth.max_token_ttl", 365*24*time.Hour)
	v.SetDefault("oauth.developer_client_id", "developer-portal")
	v.SetDefault("auth.user_header", "X-Authenticated-User")
	v.SetDefault("security.secret_verify_concurrency", runtime.NumCPU())
	v.SetDefault("ratelimit.requests_per_second", 10.0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("sweep.interval", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load returns a validated Config read from v
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address:           v.GetString("server.address"),
			BaseURL:           v.GetString("server.base_url"),
			TrustProxyHeaders: v.GetBool("server.trust_proxy_headers"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("store.driver")),
		},
		Database: DatabaseConfig{
			URL:           v.GetString("database.url"),
			MaxConns:      v.GetInt32("database.max_conns"),
			TxMaxAttempts: v.GetUint("database.tx_max_attempts"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		JWT: JWTConfig{
			PrivateKeyPath:    v.GetString("jwt.private_key_path"),
			PublicKeyPath:     v.GetString("jwt.public_key_path"),
			GenerateIfMissing: v.GetBool("jwt.generate_if_missing"),
			Issuer:            v.GetString("jwt.issuer"),
			KeyID:             v.GetString("jwt.key_id"),
		},
		OAuth: OAuthConfig{
			AuthorizationCodeTTL: v.GetDuration("oauth.authorization_code_ttl"),
			DefaultTokenTTL:      v.GetDuration("oauth.default_token_ttl"),
			MaxTokenTTL:          v.GetDuration("oauth.max_token_ttl"),
			DeveloperClientID:    v.GetString("oauth.developer_client_id"),
		},
		Auth: AuthConfig{
			UserHeader: v.GetString("auth.user_header"),
		},
		Security: SecurityConfig{
			SecretVerifyConcurrency: v.GetInt("security.secret_verify_concurrency"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetFloat64("ratelimit.requests_per_second"),
			Burst:             v.GetInt("ratelimit.burst"),
		},
		Sweep: SweepConfig{
			Interval: v.GetDuration("sweep.interval"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = cfg.Server.BaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres store"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Store.Driver))
	}
	if c.Database.TxMaxAttempts == 0 {
		errs = append(errs, errors.New("database.tx_max_attempts must be at least 1"))
	}
	if c.JWT.Issuer == "" {
		errs = append(errs, errors.New("jwt.issuer is required"))
	}
	if c.OAuth.AuthorizationCodeTTL <= 0 {
		errs = append(errs, errors.New("oauth.authorization_code_ttl must be positive"))
	}
	if c.OAuth.DefaultTokenTTL <= 0 {
		errs = append(errs, errors.New("oauth.default_token_ttl must be positive"))
	}
	if c.OAuth.MaxTokenTTL < c.OAuth.DefaultTokenTTL {
		errs = append(errs, errors.New("oauth.max_token_ttl must not be below oauth.default_token_ttl"))
	}
	if c.Auth.UserHeader == "" {
		errs = append(errs, errors.New("auth.user_header is required"))
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("ratelimit values must not be negative"))
	}
	if c.Sweep.Interval < 0 {
		errs = append(errs, errors.New("sweep.interval must not be negative"))
	}

	return errors.Join(errs...)
}
