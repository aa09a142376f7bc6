package authcore

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lifeplan-navigator/authcore/authz"
	"github.com/lifeplan-navigator/authcore/csrf"
	"github.com/lifeplan-navigator/authcore/fieldcrypt"
	"github.com/lifeplan-navigator/authcore/internal/audit"
	"github.com/lifeplan-navigator/authcore/internal/rate"
	"github.com/lifeplan-navigator/authcore/jwt"
	"github.com/lifeplan-navigator/authcore/mfa"
	"github.com/lifeplan-navigator/authcore/password"
	"github.com/lifeplan-navigator/authcore/session"
	"github.com/lifeplan-navigator/authcore/token"
)

// Engine is the authentication, session and authorization core. All methods
// are safe for concurrent use once Build has returned.
type Engine struct {
	config          Config
	sessions        session.Store
	users           UserStore
	loginLimiter    *rate.Limiter
	registerLimiter *rate.Limiter
	mfaLimiter      *rate.Limiter
	passwordHash    *password.Argon2
	totp            *mfa.TOTP
	cipher          *fieldcrypt.Cipher
	cookieSigner    *jwt.Manager
	csrf            *csrf.Guard
	audit           *audit.Dispatcher
	metrics         *Metrics
	logger          *slog.Logger
	now             func() time.Time
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events lost to a full dispatcher buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// CSRF returns the engine's double-submit guard.
func (e *Engine) CSRF() *csrf.Guard {
	return e.csrf
}

// Cipher returns the field cipher, or nil when no encryption key is set.
func (e *Engine) Cipher() *fieldcrypt.Cipher {
	return e.cipher
}

// Logger returns the operational logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Ping checks the session store.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	d, err := e.sessions.Ping(ctx)
	if err != nil {
		return 0, unavailable(err)
	}
	return d, nil
}

// Authenticate resolves a session cookie to a live session and records the
// activity. Any store failure is returned as ErrStoreUnavailable and must be
// treated as unauthenticated.
func (e *Engine) Authenticate(ctx context.Context, cookie string) (*session.Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}

	sid, ok := e.sessionIDFromCookie(cookie)
	if !ok {
		return nil, ErrUnauthorized
	}

	s, err := e.sessions.Get(ctx, sid)
	if err != nil {
		return nil, e.sessionLookupError(ctx, sid, err)
	}

	alive, err := e.sessions.Touch(ctx, sid)
	if err != nil {
		return nil, e.sessionLookupError(ctx, sid, err)
	}
	if !alive {
		if s.Expired(e.now()) {
			e.metricInc(MetricSessionExpired)
		} else {
			e.metricInc(MetricSessionIdleExpired)
		}
		e.auditAuth(ctx, audit.CodeSessionExpired, s.UserID, sid, false, nil)
		return nil, ErrUnauthorized
	}

	s.LastActivity = e.now()
	return s, nil
}

func (e *Engine) sessionLookupError(ctx context.Context, sid string, err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrUnauthorized
	case errors.Is(err, session.ErrStoreUnavailable):
		e.metricInc(MetricStoreUnavailable)
		e.logger.ErrorContext(ctx, "session store unavailable",
			"event", "store_unavailable",
			"session", sessionHandle(sid),
			"error", err,
		)
		return unavailable(err)
	default:
		e.logger.WarnContext(ctx, "session record rejected",
			"session", sessionHandle(sid),
			"error", err,
		)
		return ErrUnauthorized
	}
}

// RequireMFA returns nil when s has completed MFA, ErrMFARequired when the
// account has MFA but this session has not verified, and
// ErrMFASetupRequired when the account has no MFA.
func (e *Engine) RequireMFA(ctx context.Context, s *session.Session) error {
	if s == nil {
		return ErrUnauthorized
	}
	if s.MFAVerified {
		return nil
	}
	if s.MFAEnabled {
		return ErrMFARequired
	}

	// The flag on the session is a login-time snapshot; MFA may have been
	// enabled from another session since.
	rec, err := e.users.GetByID(ctx, s.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUnauthorized
		}
		return unavailable(err)
	}
	if rec.MFAEnabled {
		return ErrMFARequired
	}
	return ErrMFASetupRequired
}

// Actor returns the authorization subject of s.
func Actor(s *session.Session) authz.Actor {
	if s == nil {
		return authz.Actor{}
	}
	return authz.Actor{ID: s.UserID, Role: authz.Role(s.Role)}
}

// Authorize checks action on res for the owner of s. Denials are uniform:
// the caller cannot tell a missing rule from a deny rule.
func (e *Engine) Authorize(ctx context.Context, s *session.Session, action authz.Action, res authz.Resource) error {
	if s == nil {
		return ErrUnauthorized
	}
	if authz.CheckAbility(Actor(s), action, res) {
		return nil
	}

	e.metricInc(MetricAuthzDenied)
	e.emitAudit(ctx, audit.Event{
		Type:       audit.TypeSec,
		Code:       audit.CodePermissionDenied,
		Severity:   audit.SeverityWarning,
		ActorID:    s.UserID,
		SessionID:  sessionHandle(s.ID),
		TargetType: string(res.Kind),
		TargetID:   res.ID,
		Metadata:   map[string]any{"action": string(action), "role": s.Role},
	})
	return ErrPermissionDenied
}

/*
====================================
SESSION COOKIE
====================================
*/

func (e *Engine) sessionIDFromCookie(cookie string) (string, bool) {
	if cookie == "" {
		return "", false
	}
	if e.cookieSigner != nil {
		claims, err := e.cookieSigner.Parse(cookie)
		if err != nil {
			return "", false
		}
		return claims.SID, token.WellFormed(claims.SID)
	}
	return cookie, token.WellFormed(cookie)
}

func (e *Engine) cookieValue(s *session.Session) (string, error) {
	if e.cookieSigner == nil {
		return s.ID, nil
	}
	return e.cookieSigner.Sign(s.UserID, s.ID, s.ExpiresAt)
}

// SessionCookie builds the session cookie for value. It is HttpOnly,
// SameSite=Strict and Secure in production.
func (e *Engine) SessionCookie(value string, expiresAt time.Time) *http.Cookie {
	maxAge := int(expiresAt.Sub(e.now()).Seconds())
	if maxAge <= 0 {
		maxAge = int(e.config.Session.AbsoluteTimeout.Seconds())
	}
	return &http.Cookie{
		Name:     e.config.Session.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   e.config.Production(),
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearSessionCookie returns a cookie that deletes the session cookie.
func (e *Engine) ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     e.config.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   e.config.Production(),
		SameSite: http.SameSiteStrictMode,
	}
}

// SessionCookieName is the configured cookie name.
func (e *Engine) SessionCookieName() string {
	return e.config.Session.CookieName
}

/*
====================================
FIELD ENCRYPTION
====================================
*/

func (e *Engine) sealField(v string) (string, error) {
	if e.cipher == nil || v == "" {
		return v, nil
	}
	return e.cipher.Encrypt(v)
}

func (e *Engine) openField(v string) (string, error) {
	if e.cipher == nil {
		if fieldcrypt.IsEncrypted(v) {
			return "", fieldcrypt.ErrInvalidKey
		}
		return v, nil
	}
	return e.cipher.Decrypt(v)
}

func (e *Engine) publicUser(ctx context.Context, rec UserRecord) User {
	name, err := e.openField(rec.Name)
	if err != nil {
		e.logger.ErrorContext(ctx, "decrypt user name", "user_id", rec.ID, "error", err)
		name = ""
	}
	return User{
		ID:         rec.ID,
		Email:      rec.Email,
		Name:       name,
		Role:       rec.Role,
		MFAEnabled: rec.MFAEnabled,
		CreatedAt:  rec.CreatedAt,
	}
}
