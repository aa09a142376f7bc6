package authcore

import (
	"context"
	"errors"
	"sort"

	"github.com/lifeplan-navigator/authcore/internal/audit"
	"github.com/lifeplan-navigator/authcore/internal/rate"
	"github.com/lifeplan-navigator/authcore/password"
	"github.com/lifeplan-navigator/authcore/session"
)

// Login verifies email and password and creates a session. The new session
// is not MFA-verified; AuthResult.MFARequired tells the caller whether a
// VerifyMFA step follows.
//
// Wrong email and wrong password both return ErrInvalidCredentials after
// the same amount of hashing work. A disabled account with the right
// password gets ErrAccountDisabled. After LoginMaxAttempts failures for one
// IP and email pair Login returns *RateLimitError until the window lapses.
func (e *Engine) Login(ctx context.Context, email, pw string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if email == "" {
		return nil, invalid("email", "email is required")
	}
	if pw == "" {
		return nil, invalid("password", "password is required")
	}

	key := rate.LoginKey(clientIPFromContext(ctx), email)
	if err := e.loginLimiter.Check(ctx, key); err != nil {
		mapped := fromLimiter(err)
		if errors.Is(mapped, ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.auditSecurity(ctx, audit.CodeRateLimited, "", map[string]any{"limiter": "login"})
		}
		return nil, mapped
	}

	rec, err := e.users.GetByEmail(ctx, email)
	var found bool
	switch {
	case err == nil:
		found = true
	case errors.Is(err, ErrUserNotFound):
	default:
		return nil, unavailable(err)
	}

	ok := false
	if found {
		ok, err = e.passwordHash.Verify(pw, rec.PasswordHash)
		if err != nil {
			e.logger.ErrorContext(ctx, "stored password hash rejected", "user_id", rec.ID, "error", err)
			ok = false
		}
	} else {
		_, _ = e.passwordHash.Verify(pw, password.DummyHash)
	}

	if !ok {
		return nil, e.loginFailed(ctx, key, rec.ID)
	}
	if rec.Disabled {
		e.auditAuth(ctx, audit.CodeLoginFailure, rec.ID, "", false, map[string]any{"reason": "account_disabled"})
		return nil, ErrAccountDisabled
	}

	if err := e.loginLimiter.Reset(ctx, key); err != nil {
		e.logger.WarnContext(ctx, "reset login limiter", "error", err)
	}
	e.upgradePasswordHash(ctx, rec, pw)

	res, err := e.startSession(ctx, rec)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.auditAuth(ctx, audit.CodeLoginSuccess, rec.ID, res.SessionID, true, map[string]any{
		"mfa_required": rec.MFAEnabled,
	})
	return res, nil
}

func (e *Engine) loginFailed(ctx context.Context, key, userID string) error {
	e.metricInc(MetricLoginFailure)
	e.auditAuth(ctx, audit.CodeLoginFailure, userID, "", false, nil)

	count, err := e.loginLimiter.Fail(ctx, key)
	if err != nil {
		mapped := fromLimiter(err)
		if !errors.Is(mapped, ErrRateLimited) {
			return mapped
		}
		e.emitAudit(ctx, audit.Event{
			Type:     audit.TypeAuth,
			Code:     audit.CodeAccountLocked,
			Severity: audit.SeverityWarning,
			ActorID:  userID,
			Metadata: map[string]any{"attempts": count},
		})
	}
	return ErrInvalidCredentials
}

// upgradePasswordHash re-hashes a legacy or weaker hash after a successful
// verification. Failures are logged and ignored.
func (e *Engine) upgradePasswordHash(ctx context.Context, rec UserRecord, pw string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.passwordHash.NeedsUpgrade(rec.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed", "user_id", rec.ID, "error", err)
		return
	}
	if err := e.users.UpdatePassword(ctx, rec.ID, hash); err != nil {
		e.logger.WarnContext(ctx, "password rehash not stored", "user_id", rec.ID, "error", err)
		return
	}
	e.logger.InfoContext(ctx, "password hash upgraded", "user_id", rec.ID)
}

// Logout destroys one session. Unknown ids are not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	var userID string
	if s, err := e.sessions.Get(ctx, sessionID); err == nil {
		userID = s.UserID
	}
	if err := e.sessions.Destroy(ctx, sessionID); err != nil {
		return unavailable(err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionDestroyed)
	e.auditAuth(ctx, audit.CodeLogout, userID, sessionID, true, nil)
	return nil
}

// LogoutAll destroys every session of userID and returns how many were
// removed.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.sessions.DestroyAllForUser(ctx, userID)
	if err != nil {
		return 0, unavailable(err)
	}

	e.metricInc(MetricLogoutAll)
	for i := 0; i < n; i++ {
		e.metricInc(MetricSessionDestroyed)
	}
	e.auditAuth(ctx, audit.CodeLogout, userID, "", true, map[string]any{
		"scope":    "all",
		"sessions": n,
	})
	return n, nil
}

// ListSessions returns the live sessions of userID, newest first. The
// session matching currentID is flagged.
func (e *Engine) ListSessions(ctx context.Context, userID, currentID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	list, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}

	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, sessionInfo(s, currentID))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func sessionInfo(s *session.Session, currentID string) SessionInfo {
	return SessionInfo{
		Handle:       sessionHandle(s.ID),
		Current:      currentID != "" && s.ID == currentID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		UserAgent:    s.UserAgent,
		IPAddress:    s.IPAddress,
	}
}
