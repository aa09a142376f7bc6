package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/lifeplan-navigator/authcore/authz"
	"github.com/lifeplan-navigator/authcore/internal/audit"
)

// GetUser returns the public profile for userID. Decryption failures blank
// the name rather than failing the read.
func (e *Engine) GetUser(ctx context.Context, userID string) (User, error) {
	if e == nil || e.users == nil {
		return User{}, ErrEngineNotReady
	}

	rec, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, unavailable(err)
	}
	return e.publicUser(ctx, rec), nil
}

// ViewProfile is GetUser plus a DATA_USER_PROFILE_VIEW audit record naming
// actor. Support and admin staff reading another user's profile get the
// email and name masked.
func (e *Engine) ViewProfile(ctx context.Context, actor authz.Actor, userID string) (User, error) {
	u, err := e.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	masked := authz.RequiresMasking(actor, authz.Resource{Kind: authz.KindProfile, ID: userID, UserID: userID})
	if masked {
		u.Email = authz.MaskEmail(u.Email)
		u.Name = authz.MaskValue(u.Name, 1)
	}
	e.emitAudit(ctx, audit.Event{
		Type:       audit.TypeData,
		Code:       audit.CodeProfileView,
		Severity:   audit.SeverityInfo,
		ActorID:    actor.ID,
		TargetType: "user",
		TargetID:   userID,
		Success:    true,
		Metadata:   map[string]any{"masked": masked},
	})
	return u, nil
}

// UpdateProfile validates and seals a new display name.
func (e *Engine) UpdateProfile(ctx context.Context, actorID, userID, name string) (User, error) {
	if e == nil || e.users == nil {
		return User{}, ErrEngineNotReady
	}

	if err := ValidateName(name); err != nil {
		return User{}, err
	}
	sealed, err := e.sealField(strings.TrimSpace(name))
	if err != nil {
		return User{}, err
	}

	if err := e.users.UpdateName(ctx, userID, sealed); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, unavailable(err)
	}

	e.emitAudit(ctx, audit.Event{
		Type:       audit.TypeData,
		Code:       audit.CodeProfileUpdate,
		Severity:   audit.SeverityInfo,
		ActorID:    actorID,
		TargetType: "user",
		TargetID:   userID,
		Success:    true,
		Metadata:   map[string]any{"fields": "name"},
	})
	return e.GetUser(ctx, userID)
}
