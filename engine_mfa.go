package authcore

import (
	"context"
	"errors"

	"github.com/lifeplan-navigator/authcore/internal/audit"
	"github.com/lifeplan-navigator/authcore/mfa"
	"github.com/lifeplan-navigator/authcore/session"
)

// SetupMFA generates a TOTP secret and backup codes for userID. The secret
// stays pending until the first successful VerifyMFA; calling SetupMFA again
// while pending replaces it. The returned codes are not stored in plaintext
// and cannot be shown again.
func (e *Engine) SetupMFA(ctx context.Context, userID string) (*MFASetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, unavailable(err)
	}
	if rec.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	key, err := e.totp.Generate(rec.Email)
	if err != nil {
		return nil, err
	}
	codes, err := mfa.GenerateBackupCodes(e.config.MFA.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	sealed, err := e.sealField(key.Secret)
	if err != nil {
		return nil, err
	}

	if err := e.users.SetMFASecret(ctx, userID, sealed, mfa.HashBackupCodes(userID, codes)); err != nil {
		switch {
		case errors.Is(err, ErrMFAAlreadyEnabled), errors.Is(err, ErrUserNotFound):
			return nil, err
		}
		return nil, unavailable(err)
	}

	e.metricInc(MetricMFASetup)
	e.logger.InfoContext(ctx, "mfa setup started", "user_id", userID)

	return &MFASetup{
		Secret:      key.Secret,
		URL:         key.URL,
		BackupCodes: codes,
	}, nil
}

// VerifyMFA checks a TOTP code for the user of sessionID and marks the
// session verified. With MFAActionSetup, or MFAActionAny while setup is
// pending, a valid code also enables MFA on the account.
func (e *Engine) VerifyMFA(ctx context.Context, sessionID, code string, action MFAAction) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if !mfa.WellFormedCode(code) {
		return ErrMFACodeMalformed
	}
	switch action {
	case MFAActionAny, MFAActionSetup, MFAActionLogin:
	default:
		return invalid("action", "action must be setup or login")
	}

	s, rec, err := e.mfaSubject(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec.MFASecret == "" {
		return ErrMFANotConfigured
	}
	if action == MFAActionLogin && !rec.MFAEnabled {
		return ErrMFANotConfigured
	}

	secret, err := e.openField(rec.MFASecret)
	if err != nil {
		e.logger.ErrorContext(ctx, "decrypt mfa secret", "user_id", rec.ID, "error", err)
		return err
	}

	ok, err := e.totp.Validate(secret, code, e.now())
	if err != nil {
		if errors.Is(err, mfa.ErrMalformedCode) {
			return ErrMFACodeMalformed
		}
		return err
	}
	if !ok {
		e.metricInc(MetricMFAVerifyFailure)
		return e.mfaFailed(ctx, rec.ID, sessionID, ErrMFAInvalidCode)
	}

	if err := e.mfaLimiter.Reset(ctx, rec.ID); err != nil {
		e.logger.WarnContext(ctx, "reset mfa limiter", "error", err)
	}

	if !rec.MFAEnabled && action != MFAActionLogin {
		if err := e.users.EnableMFA(ctx, rec.ID, rec.MFASecret); err != nil {
			switch {
			case errors.Is(err, ErrMFASetupChanged):
				e.logger.WarnContext(ctx, "mfa secret replaced during verify", "user_id", rec.ID)
				return err
			case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrMFANotConfigured):
				return err
			}
			return unavailable(err)
		}
		e.metricInc(MetricMFAEnabled)
		e.auditAuth(ctx, audit.CodeMFAEnabled, rec.ID, s.ID, true, nil)
	}

	if err := e.markMFAVerified(ctx, s.ID); err != nil {
		return err
	}
	e.metricInc(MetricMFAVerifySuccess)
	e.auditAuth(ctx, audit.CodeMFAVerified, rec.ID, s.ID, true, map[string]any{"method": "totp"})
	return nil
}

// VerifyBackupCode consumes one backup code and marks the session verified.
// It returns the number of codes left.
func (e *Engine) VerifyBackupCode(ctx context.Context, sessionID, code string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	s, rec, err := e.mfaSubject(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !rec.MFAEnabled {
		return 0, ErrMFANotConfigured
	}

	idx, err := mfa.MatchBackupCode(rec.ID, code, rec.BackupCodes)
	if err != nil || idx < 0 {
		e.metricInc(MetricBackupCodeFailed)
		return 0, e.mfaFailed(ctx, rec.ID, sessionID, ErrBackupCodeInvalid)
	}

	consumed, err := e.users.ConsumeBackupCode(ctx, rec.ID, rec.BackupCodes[idx])
	if err != nil {
		return 0, unavailable(err)
	}
	if !consumed {
		// Spent by a concurrent request.
		e.metricInc(MetricBackupCodeFailed)
		return 0, e.mfaFailed(ctx, rec.ID, sessionID, ErrBackupCodeInvalid)
	}

	if err := e.mfaLimiter.Reset(ctx, rec.ID); err != nil {
		e.logger.WarnContext(ctx, "reset mfa limiter", "error", err)
	}
	if err := e.markMFAVerified(ctx, s.ID); err != nil {
		return 0, err
	}

	remaining := len(rec.BackupCodes) - 1
	e.metricInc(MetricBackupCodeUsed)
	e.auditAuth(ctx, audit.CodeBackupCodeUsed, rec.ID, s.ID, true, map[string]any{"remaining": remaining})
	return remaining, nil
}

// mfaSubject resolves the session and its user and applies the MFA attempt
// window.
func (e *Engine) mfaSubject(ctx context.Context, sessionID string) (*session.Session, UserRecord, error) {
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, UserRecord{}, e.sessionLookupError(ctx, sessionID, err)
	}

	if err := e.mfaLimiter.Check(ctx, s.UserID); err != nil {
		mapped := fromLimiter(err)
		if errors.Is(mapped, ErrRateLimited) {
			e.metricInc(MetricMFARateLimited)
			e.auditSecurity(ctx, audit.CodeRateLimited, s.UserID, map[string]any{"limiter": "mfa"})
		}
		return nil, UserRecord{}, mapped
	}

	rec, err := e.users.GetByID(ctx, s.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, UserRecord{}, ErrUserNotFound
		}
		return nil, UserRecord{}, unavailable(err)
	}
	return s, rec, nil
}

func (e *Engine) mfaFailed(ctx context.Context, userID, sessionID string, reason error) error {
	e.auditAuth(ctx, audit.CodeMFAVerified, userID, sessionID, false, nil)
	if _, err := e.mfaLimiter.Fail(ctx, userID); err != nil {
		mapped := fromLimiter(err)
		if !errors.Is(mapped, ErrRateLimited) {
			return mapped
		}
	}
	return reason
}

func (e *Engine) markMFAVerified(ctx context.Context, sessionID string) error {
	ok, err := e.sessions.SetMFAVerified(ctx, sessionID, true)
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
