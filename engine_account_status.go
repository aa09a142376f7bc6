package authcore

import (
	"context"
	"errors"

	"github.com/lifeplan-navigator/authcore/internal/audit"
)

// DisableAccount blocks further logins for userID and destroys its live
// sessions. It returns the number of sessions destroyed. Disabling an
// already disabled account still revokes sessions.
func (e *Engine) DisableAccount(ctx context.Context, actorID, userID string) (int, error) {
	if e == nil || e.users == nil {
		return 0, ErrEngineNotReady
	}
	if err := e.setAccountDisabled(ctx, userID, true); err != nil {
		e.auditAccountStatus(ctx, audit.CodeAccountDisable, actorID, userID, err)
		return 0, err
	}
	e.metricInc(MetricAccountDisabled)

	n, err := e.LogoutAll(ctx, userID)
	e.auditAccountStatus(ctx, audit.CodeAccountDisable, actorID, userID, err)
	if err != nil {
		e.logger.ErrorContext(ctx, "account disabled but sessions not revoked", "user_id", userID, "error", err)
		return 0, err
	}
	e.logger.InfoContext(ctx, "account disabled", "user_id", userID, "sessions", n)
	return n, nil
}

// EnableAccount lets a disabled account log in again.
func (e *Engine) EnableAccount(ctx context.Context, actorID, userID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	err := e.setAccountDisabled(ctx, userID, false)
	e.auditAccountStatus(ctx, audit.CodeAccountEnable, actorID, userID, err)
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "account enabled", "user_id", userID)
	return nil
}

func (e *Engine) setAccountDisabled(ctx context.Context, userID string, disabled bool) error {
	if userID == "" {
		return ErrUserNotFound
	}
	if err := e.users.SetDisabled(ctx, userID, disabled); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return unavailable(err)
	}
	return nil
}

func (e *Engine) auditAccountStatus(ctx context.Context, code, actorID, userID string, err error) {
	ev := audit.Event{
		Type:       audit.TypeAdmin,
		Code:       code,
		Severity:   audit.SeverityInfo,
		ActorID:    actorID,
		TargetType: "User",
		TargetID:   userID,
		Success:    err == nil,
	}
	if err != nil {
		ev.Severity = audit.SeverityWarning
		ev.Metadata = map[string]any{"error": err.Error()}
	}
	e.emitAudit(ctx, ev)
}
