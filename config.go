package authcore

import (
	"errors"
	"strings"
	"time"

	"github.com/lifeplan-navigator/authcore/fieldcrypt"
)

// Environment selects cookie security, CSP and HSTS behavior.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config is the complete engine configuration. Build it from DefaultConfig
// and override fields; it is copied by Builder.WithConfig and treated as
// immutable afterwards.
type Config struct {
	Environment  Environment
	Session      SessionConfig
	SessionToken SessionTokenConfig
	CSRF         CSRFConfig
	MFA          MFAConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	Encryption   EncryptionConfig
	Headers      HeadersConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds session lifetime and names the cookie.
type SessionConfig struct {
	RedisPrefix     string
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
	MaxConcurrent   int
	CookieName      string
}

// SessionTokenConfig enables signing of the session cookie. When disabled
// the cookie carries the bare session id.
type SessionTokenConfig struct {
	Enabled       bool
	SigningMethod string // "ed25519" or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
CSRF CONFIG
====================================
*/

// CSRFConfig controls the double-submit guard.
type CSRFConfig struct {
	CookieMaxAge   time.Duration
	ExemptPrefixes []string
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig controls TOTP enrollment and the attempt window shared by TOTP
// and backup-code verification.
type MFAConfig struct {
	Issuer          string
	BackupCodeCount int
	MaxAttempts     int
	AttemptWindow   time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters and the length policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	MinLength      int
	MaxLength      int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the login lockout, the registration window and the
// per-IP request throttle used by middleware.RateLimit.
type RateLimitConfig struct {
	LoginMaxAttempts        int
	LoginLockout            time.Duration
	RegistrationMaxAttempts int
	RegistrationWindow      time.Duration
	RequestsPerSecond       float64
	Burst                   int
}

/*
====================================
ENCRYPTION CONFIG
====================================
*/

// EncryptionConfig holds the base64 field encryption master key.
type EncryptionConfig struct {
	Key string
}

/*
====================================
HEADERS CONFIG
====================================
*/

// HeadersConfig feeds the Content-Security-Policy connect-src directive.
type HeadersConfig struct {
	APIOrigin       string
	DevConnectSrc   []string
	HSTSMaxAge      time.Duration
	ExtraConnectSrc []string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles counters and the authenticate latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production-shaped defaults: 30 minute idle and
// 8 hour absolute sessions, three concurrent sessions, five failed logins
// per 15 minutes, three registrations per IP per hour.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Environment: EnvDevelopment,
		Session: SessionConfig{
			RedisPrefix:     "lifeplan:",
			IdleTimeout:     30 * time.Minute,
			AbsoluteTimeout: 8 * time.Hour,
			MaxConcurrent:   3,
			CookieName:      "session",
		},
		SessionToken: SessionTokenConfig{
			Enabled:       false,
			SigningMethod: "hs256",
			Issuer:        "lifeplan-navigator",
		},
		CSRF: CSRFConfig{
			CookieMaxAge:   24 * time.Hour,
			ExemptPrefixes: []string{"/api/external/"},
		},
		MFA: MFAConfig{
			Issuer:          "LifePlan Navigator",
			BackupCodeCount: 10,
			MaxAttempts:     5,
			AttemptWindow:   15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			MinLength:      12,
			MaxLength:      128,
		},
		RateLimit: RateLimitConfig{
			LoginMaxAttempts:        5,
			LoginLockout:            15 * time.Minute,
			RegistrationMaxAttempts: 3,
			RegistrationWindow:      time.Hour,
			RequestsPerSecond:       10,
			Burst:                   20,
		},
		Headers: HeadersConfig{
			APIOrigin:     "https://api.lifeplan-navigator.jp",
			DevConnectSrc: []string{"http://localhost:8000"},
			HSTSMaxAge:    365 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.SessionToken.PrivateKey = cloneBytes(cfg.SessionToken.PrivateKey)
	out.SessionToken.PublicKey = cloneBytes(cfg.SessionToken.PublicKey)
	out.CSRF.ExemptPrefixes = cloneStrings(cfg.CSRF.ExemptPrefixes)
	out.Headers.DevConnectSrc = cloneStrings(cfg.Headers.DevConnectSrc)
	out.Headers.ExtraConnectSrc = cloneStrings(cfg.Headers.ExtraConnectSrc)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// Production reports whether cookies must be Secure and HSTS sent.
func (c *Config) Production() bool {
	return c.Environment == EnvProduction
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return errors.New("Environment must be development or production")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session IdleTimeout must be > 0")
	}
	if c.Session.AbsoluteTimeout <= 0 {
		return errors.New("Session AbsoluteTimeout must be > 0")
	}
	if c.Session.IdleTimeout > c.Session.AbsoluteTimeout {
		return errors.New("Session IdleTimeout must not exceed AbsoluteTimeout")
	}
	if c.Session.MaxConcurrent < 1 {
		return errors.New("Session MaxConcurrent must be >= 1")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName must not be empty")
	}

	// Session token
	if c.SessionToken.Enabled {
		switch c.SessionToken.SigningMethod {
		case "hs256":
			if len(c.SessionToken.PrivateKey) < 32 {
				return errors.New("SessionToken hs256 requires a PrivateKey of at least 32 bytes")
			}
		case "ed25519":
			if len(c.SessionToken.PrivateKey) == 0 || len(c.SessionToken.PublicKey) == 0 {
				return errors.New("SessionToken ed25519 requires PrivateKey and PublicKey")
			}
		default:
			return errors.New("unsupported SessionToken signing method")
		}
		if c.SessionToken.Leeway < 0 || c.SessionToken.Leeway > 2*time.Minute {
			return errors.New("SessionToken Leeway must be between 0 and 2m")
		}
	}

	// CSRF
	if c.CSRF.CookieMaxAge <= 0 {
		return errors.New("CSRF CookieMaxAge must be > 0")
	}
	for _, p := range c.CSRF.ExemptPrefixes {
		if !strings.HasPrefix(p, "/") {
			return errors.New("CSRF ExemptPrefixes must be absolute paths")
		}
		if p == "/" || p == "/api/" {
			return errors.New("CSRF ExemptPrefixes must not exempt the whole API")
		}
	}

	// MFA
	if strings.TrimSpace(c.MFA.Issuer) == "" {
		return errors.New("MFA Issuer must not be empty")
	}
	if c.MFA.BackupCodeCount < 1 || c.MFA.BackupCodeCount > 20 {
		return errors.New("MFA BackupCodeCount must be between 1 and 20")
	}
	if c.MFA.MaxAttempts < 0 {
		return errors.New("MFA MaxAttempts must be >= 0")
	}
	if c.MFA.MaxAttempts > 0 && c.MFA.AttemptWindow <= 0 {
		return errors.New("MFA AttemptWindow must be > 0 when MaxAttempts is set")
	}

	// Password
	if c.Password.MinLength < 12 {
		return errors.New("Password MinLength must be >= 12")
	}
	if c.Password.MaxLength < c.Password.MinLength || c.Password.MaxLength > 1024 {
		return errors.New("Password MaxLength must be between MinLength and 1024")
	}

	// Rate limits
	if c.RateLimit.LoginMaxAttempts < 0 || c.RateLimit.RegistrationMaxAttempts < 0 {
		return errors.New("RateLimit attempt counts must be >= 0")
	}
	if c.RateLimit.LoginMaxAttempts > 0 && c.RateLimit.LoginLockout <= 0 {
		return errors.New("RateLimit LoginLockout must be > 0")
	}
	if c.RateLimit.RegistrationMaxAttempts > 0 && c.RateLimit.RegistrationWindow <= 0 {
		return errors.New("RateLimit RegistrationWindow must be > 0")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("RateLimit request throttle must be >= 0")
	}

	// Encryption
	if c.Encryption.Key != "" {
		if _, err := fieldcrypt.NewFromBase64(c.Encryption.Key); err != nil {
			return errors.New("Encryption Key must be base64 of 32 bytes")
		}
	} else if c.Production() {
		return errors.New("Encryption Key is required in production")
	}

	// Headers
	if !strings.HasPrefix(c.Headers.APIOrigin, "https://") {
		return errors.New("Headers APIOrigin must be an https origin")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
