// Package serverconfig loads the lifeplan-server configuration from a YAML
// or TOML file plus environment overrides and maps it onto authcore.Config.
package serverconfig

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/lifeplan-navigator/authcore"
)

// Config is the on-disk server configuration. Zero auth values keep the
// authcore defaults.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Archive  ArchiveConfig  `yaml:"archive" toml:"archive"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
}

/*
====================================
SERVER CONFIG
====================================
*/

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	TrustedProxies  []string      `yaml:"trusted_proxies" toml:"trusted_proxies"`
	// Dev runs an embedded Redis and an in-memory user store when no
	// external services are configured.
	Dev     bool `yaml:"dev" toml:"dev"`
	Metrics bool `yaml:"metrics" toml:"metrics"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `yaml:"format" toml:"format"`
	Level  string `yaml:"level" toml:"level"`
}

// RedisConfig points at the session store.
type RedisConfig struct {
	URL string `yaml:"url" toml:"url"`
}

/*
====================================
DATABASE CONFIG
====================================
*/

// DatabaseConfig selects the user store.
type DatabaseConfig struct {
	Driver      string `yaml:"driver" toml:"driver"` // "postgres", "sqlite" or "memory"
	URL         string `yaml:"url" toml:"url"`
	AutoMigrate bool   `yaml:"auto_migrate" toml:"auto_migrate"`
	MaxOpen     int    `yaml:"max_open_conns" toml:"max_open_conns"`
}

// ArchiveConfig enables the S3 audit archive.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Bucket   string `yaml:"bucket" toml:"bucket"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
	Region   string `yaml:"region" toml:"region"`
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	// Static credentials, mainly for MinIO. Empty uses the AWS default chain.
	AccessKeyID     string        `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key" toml:"secret_access_key"`
	BatchSize       int           `yaml:"batch_size" toml:"batch_size"`
	FlushInterval   time.Duration `yaml:"flush_interval" toml:"flush_interval"`
}

/*
====================================
AUTH CONFIG
====================================
*/

// AuthConfig is the subset of authcore.Config exposed to operators.
type AuthConfig struct {
	Environment           string        `yaml:"environment" toml:"environment"`
	EncryptionKey         string        `yaml:"encryption_key" toml:"encryption_key"`
	IdleTimeout           time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	AbsoluteTimeout       time.Duration `yaml:"absolute_timeout" toml:"absolute_timeout"`
	MaxConcurrentSessions int           `yaml:"max_concurrent_sessions" toml:"max_concurrent_sessions"`
	RedisPrefix           string        `yaml:"redis_prefix" toml:"redis_prefix"`
	APIOrigin             string        `yaml:"api_origin" toml:"api_origin"`
	CSRFExemptPrefixes    []string      `yaml:"csrf_exempt_prefixes" toml:"csrf_exempt_prefixes"`
	MFAIssuer             string        `yaml:"mfa_issuer" toml:"mfa_issuer"`
	LoginMaxAttempts      int           `yaml:"login_max_attempts" toml:"login_max_attempts"`
	LoginLockout          time.Duration `yaml:"login_lockout" toml:"login_lockout"`
	RequestsPerSecond     float64       `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst                 int           `yaml:"burst" toml:"burst"`
	Argon2MemoryKB        uint32        `yaml:"argon2_memory_kb" toml:"argon2_memory_kb"`
	Argon2Time            uint32        `yaml:"argon2_time" toml:"argon2_time"`
	SessionToken          TokenConfig   `yaml:"session_token" toml:"session_token"`
}

// TokenConfig enables signed session cookies. Secret is base64 for hs256;
// the key files hold PEM for ed25519.
type TokenConfig struct {
	Enabled        bool   `yaml:"enabled" toml:"enabled"`
	SigningMethod  string `yaml:"signing_method" toml:"signing_method"`
	Secret         string `yaml:"secret" toml:"secret"`
	PrivateKeyFile string `yaml:"private_key_file" toml:"private_key_file"`
	PublicKeyFile  string `yaml:"public_key_file" toml:"public_key_file"`
	KeyID          string `yaml:"key_id" toml:"key_id"`
}

// Default returns a development configuration listening on :8000.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			TrustedProxies:  []string{"127.0.0.1/32", "::1/128"},
			Metrics:         true,
		},
		Log: LogConfig{Format: "json", Level: "info"},
		Database: DatabaseConfig{
			Driver:      "memory",
			AutoMigrate: true,
			MaxOpen:     10,
		},
		Archive: ArchiveConfig{
			Prefix:        "audit/",
			BatchSize:     500,
			FlushInterval: time.Minute,
		},
		Auth: AuthConfig{Environment: string(authcore.EnvDevelopment)},
	}
}

// Load reads path (when non-empty) over the defaults, applies the process
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is Load without Validate, for tools that need only part of the
// configuration.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	clean := filepath.Clean(path)
	data, err := os.ReadFile(clean)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(clean)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse toml config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config extension %q", filepath.Ext(clean))
	}
	return nil
}

// Validate checks the server-only settings. Auth settings are validated by
// authcore when the engine is built.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be > 0")
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Database.URL == "" {
			return errors.New("database.url must be set for " + c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Redis.URL == "" && !c.Server.Dev {
		return errors.New("redis.url must be set unless server.dev is enabled")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return errors.New("archive.bucket must be set when the archive is enabled")
	}
	if c.Archive.Enabled && c.Archive.BatchSize <= 0 {
		return errors.New("archive.batch_size must be > 0")
	}
	return nil
}

// EngineConfig maps the file onto authcore.DefaultConfig.
func (c *Config) EngineConfig() (authcore.Config, error) {
	out := authcore.DefaultConfig()
	a := c.Auth

	switch strings.ToLower(a.Environment) {
	case "", "development", "dev", "test":
		out.Environment = authcore.EnvDevelopment
	case "production", "prod":
		out.Environment = authcore.EnvProduction
	default:
		return authcore.Config{}, fmt.Errorf("auth.environment %q is not supported", a.Environment)
	}
	out.Encryption.Key = a.EncryptionKey

	if a.IdleTimeout > 0 {
		out.Session.IdleTimeout = a.IdleTimeout
	}
	if a.AbsoluteTimeout > 0 {
		out.Session.AbsoluteTimeout = a.AbsoluteTimeout
	}
	if a.MaxConcurrentSessions > 0 {
		out.Session.MaxConcurrent = a.MaxConcurrentSessions
	}
	if a.RedisPrefix != "" {
		out.Session.RedisPrefix = a.RedisPrefix
	}
	if a.APIOrigin != "" {
		out.Headers.APIOrigin = a.APIOrigin
	}
	if a.CSRFExemptPrefixes != nil {
		out.CSRF.ExemptPrefixes = append([]string(nil), a.CSRFExemptPrefixes...)
	}
	if a.MFAIssuer != "" {
		out.MFA.Issuer = a.MFAIssuer
	}
	if a.LoginMaxAttempts > 0 {
		out.RateLimit.LoginMaxAttempts = a.LoginMaxAttempts
	}
	if a.LoginLockout > 0 {
		out.RateLimit.LoginLockout = a.LoginLockout
	}
	if a.RequestsPerSecond > 0 {
		out.RateLimit.RequestsPerSecond = a.RequestsPerSecond
	}
	if a.Burst > 0 {
		out.RateLimit.Burst = a.Burst
	}
	if a.Argon2MemoryKB > 0 {
		out.Password.Memory = a.Argon2MemoryKB
	}
	if a.Argon2Time > 0 {
		out.Password.Time = a.Argon2Time
	}

	if a.SessionToken.Enabled {
		tok, err := a.SessionToken.engineConfig(out.SessionToken)
		if err != nil {
			return authcore.Config{}, err
		}
		out.SessionToken = tok
	}

	if err := out.Validate(); err != nil {
		return authcore.Config{}, err
	}
	return out, nil
}

func (t TokenConfig) engineConfig(base authcore.SessionTokenConfig) (authcore.SessionTokenConfig, error) {
	base.Enabled = true
	if t.SigningMethod != "" {
		base.SigningMethod = t.SigningMethod
	}
	base.KeyID = t.KeyID

	switch base.SigningMethod {
	case "hs256":
		secret, err := base64.StdEncoding.DecodeString(t.Secret)
		if err != nil {
			return base, fmt.Errorf("auth.session_token.secret: %w", err)
		}
		base.PrivateKey = secret
	case "ed25519":
		priv, err := os.ReadFile(filepath.Clean(t.PrivateKeyFile))
		if err != nil {
			return base, fmt.Errorf("auth.session_token.private_key_file: %w", err)
		}
		pub, err := os.ReadFile(filepath.Clean(t.PublicKeyFile))
		if err != nil {
			return base, fmt.Errorf("auth.session_token.public_key_file: %w", err)
		}
		base.PrivateKey, base.PublicKey = priv, pub
	default:
		return base, fmt.Errorf("auth.session_token.signing_method %q is not supported", base.SigningMethod)
	}
	return base, nil
}
