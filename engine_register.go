package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lifeplan-navigator/authcore/authz"
	"github.com/lifeplan-navigator/authcore/internal/audit"
	"github.com/lifeplan-navigator/authcore/password"
	"github.com/lifeplan-navigator/authcore/session"
)

// Register creates an account with role user and signs it in.
//
// Register returns *RateLimitError once the caller's IP used up the
// registration window, *ValidationError for a rejected field and
// ErrAccountExists for a taken email.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	if err := e.registerLimiter.Take(ctx, ip); err != nil {
		mapped := fromLimiter(err)
		if errors.Is(mapped, ErrRateLimited) {
			e.metricInc(MetricRegistrationRateLimited)
			e.auditSecurity(ctx, audit.CodeRateLimited, "", map[string]any{"limiter": "register"})
		}
		return nil, mapped
	}

	rec, err := e.createAccount(ctx, req, authz.RoleUser, "")
	if err != nil {
		return nil, err
	}
	return e.startSession(ctx, rec)
}

// CreateUser provisions an account with role for an operator. It skips
// the registration limiter and does not start a session. actorID names
// the operator in the audit trail.
func (e *Engine) CreateUser(ctx context.Context, actorID string, req RegisterRequest, role authz.Role) (User, error) {
	if e == nil {
		return User{}, ErrEngineNotReady
	}
	if !role.Valid() {
		return User{}, invalid("role", "role is not recognized")
	}
	rec, err := e.createAccount(ctx, req, role, actorID)
	if err != nil {
		return User{}, err
	}
	return e.publicUser(ctx, rec), nil
}

// createAccount validates req and stores the account. An empty actorID
// means self-registration.
func (e *Engine) createAccount(ctx context.Context, req RegisterRequest, role authz.Role, actorID string) (UserRecord, error) {
	email := NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if err := ValidateEmail(email); err != nil {
		return UserRecord{}, err
	}
	if err := e.validatePassword("password", req.Password); err != nil {
		return UserRecord{}, err
	}
	if err := ValidateName(name); err != nil {
		return UserRecord{}, err
	}

	if _, err := e.users.GetByEmail(ctx, email); err == nil {
		e.metricInc(MetricRegistrationDuplicate)
		return UserRecord{}, ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return UserRecord{}, unavailable(err)
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			return UserRecord{}, invalid("password", "password length is out of range")
		}
		return UserRecord{}, err
	}
	sealedName, err := e.sealField(name)
	if err != nil {
		return UserRecord{}, err
	}

	now := e.now().UTC()
	rec := UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         sealedName,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegistrationDuplicate)
			return UserRecord{}, ErrAccountExists
		}
		return UserRecord{}, unavailable(err)
	}

	e.metricInc(MetricRegistrationSuccess)
	actor, source := rec.ID, "self"
	if actorID != "" {
		actor, source = actorID, "operator"
	}
	e.emitAudit(ctx, audit.Event{
		Type:       audit.TypeAdmin,
		Code:       audit.CodeUserCreate,
		ActorID:    actor,
		TargetType: "User",
		TargetID:   rec.ID,
		Success:    true,
		Metadata:   map[string]any{"source": source, "role": string(role)},
	})
	e.logger.InfoContext(ctx, "account created", "user_id", rec.ID, "source", source)

	return rec, nil
}

// startSession creates a session for rec and applies the concurrent
// session limit.
func (e *Engine) startSession(ctx context.Context, rec UserRecord) (*AuthResult, error) {
	s, evicted, err := e.sessions.Create(ctx, session.Attrs{
		UserID:     rec.ID,
		Email:      rec.Email,
		Role:       string(rec.Role),
		MFAEnabled: rec.MFAEnabled,
		UserAgent:  userAgentFromContext(ctx),
		IPAddress:  clientIPFromContext(ctx),
	})
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			e.logger.ErrorContext(ctx, "session store unavailable",
				"event", "store_unavailable",
				"user_id", rec.ID,
				"error", err,
			)
		}
		return nil, unavailable(err)
	}

	e.metricInc(MetricSessionCreated)
	for _, id := range evicted {
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, audit.Event{
			Type:       audit.TypeSec,
			Code:       audit.CodeSessionEvicted,
			Severity:   audit.SeverityInfo,
			ActorID:    rec.ID,
			SessionID:  sessionHandle(s.ID),
			TargetType: "Session",
			TargetID:   sessionHandle(id),
			Success:    true,
		})
	}

	cookie, err := e.cookieValue(s)
	if err != nil {
		_ = e.sessions.Destroy(ctx, s.ID)
		return nil, err
	}

	return &AuthResult{
		User:        e.publicUser(ctx, rec),
		SessionID:   s.ID,
		Cookie:      cookie,
		ExpiresAt:   s.ExpiresAt,
		MFARequired: rec.MFAEnabled,
		Evicted:     len(evicted),
	}, nil
}
