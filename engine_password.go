package authcore

import (
	"context"
	"errors"

	"github.com/lifeplan-navigator/authcore/internal/audit"
)

// ChangePassword replaces the password of userID and signs the user out
// everywhere, including the calling session.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	rec, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUnauthorized
		}
		return unavailable(err)
	}

	ok, err := e.passwordHash.Verify(oldPassword, rec.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.auditAuth(ctx, audit.CodePasswordChange, userID, "", false, map[string]any{"reason": "invalid_old_password"})
		return ErrInvalidCredentials
	}

	if err := e.validatePassword("newPassword", newPassword); err != nil {
		return err
	}
	if oldPassword == newPassword {
		e.metricInc(MetricPasswordChangeReuseRejected)
		return ErrPasswordReuse
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.users.UpdatePassword(ctx, userID, hash); err != nil {
		return unavailable(err)
	}

	n, err := e.sessions.DestroyAllForUser(ctx, userID)
	if err != nil {
		// Password is already stored; old sessions may still be alive.
		e.logger.ErrorContext(ctx, "destroy sessions after password change",
			"event", "store_unavailable",
			"user_id", userID,
			"error", err,
		)
		return unavailable(err)
	}
	for i := 0; i < n; i++ {
		e.metricInc(MetricSessionDestroyed)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.auditAuth(ctx, audit.CodePasswordChange, userID, "", true, map[string]any{"sessions_revoked": n})
	return nil
}
