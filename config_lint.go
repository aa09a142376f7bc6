package authcore

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one finding of Config.Lint.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (ws LintWarnings) BySeverity(min LintSeverity) LintWarnings {
	var out LintWarnings
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error listing every warning at or above min, or nil.
func (ws LintWarnings) AsError(min LintSeverity) error {
	hits := ws.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, w.Code)
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, ", "))
}

// Lint reports settings that are valid but weaker than the defaults. It
// never fails; use Validate for hard errors.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Environment != EnvProduction {
		add("dev_environment", LintInfo, "development mode: cookies are not Secure and HSTS is off")
	}
	if c.Encryption.Key == "" {
		add("encryption_key_missing", LintWarn, "field encryption disabled; MFA secrets are stored in plaintext")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintWarn, "audit events are discarded")
	}
	if c.RateLimit.LoginMaxAttempts == 0 {
		add("login_limit_disabled", LintHigh, "no lockout after failed logins")
	}
	if c.MFA.MaxAttempts == 0 {
		add("mfa_limit_disabled", LintHigh, "TOTP and backup codes can be guessed without limit")
	}
	if c.RateLimit.RegistrationMaxAttempts == 0 {
		add("registration_limit_disabled", LintWarn, "no per-IP registration window")
	}
	if c.Session.IdleTimeout > time.Hour {
		add("idle_timeout_long", LintWarn, "idle timeout above one hour")
	}
	if c.Session.AbsoluteTimeout > 24*time.Hour {
		add("absolute_timeout_long", LintWarn, "absolute session lifetime above one day")
	}
	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2id memory below 64 MB")
	}
	if !c.SessionToken.Enabled {
		add("session_token_unsigned", LintInfo, "session cookie carries the bare session id")
	} else if c.SessionToken.SigningMethod == "hs256" {
		add("signing_hs256", LintInfo, "session cookie signed with a shared secret")
	}
	for _, p := range c.CSRF.ExemptPrefixes {
		if !strings.HasPrefix(p, "/api/external/") {
			add("csrf_exempt_broad", LintWarn, "CSRF exemption outside /api/external/: "+p)
		}
	}

	return ws
}
