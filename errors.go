package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/lifeplan-navigator/authcore/internal/rate"
)

var (
	// ErrUnauthorized means no live session was presented.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned for any wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by UserStore implementations and SetupMFA.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists is returned by Register for a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrPasswordReuse rejects a password change to the current password.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrMFARequired means MFA is enabled but this session has not verified.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFASetupRequired means the route needs MFA and the user has none.
	ErrMFASetupRequired = errors.New("mfa setup required")
	// ErrAccountDisabled is returned by Login for a disabled account once
	// the password has been verified.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrMFAAlreadyEnabled is returned by SetupMFA once MFA is on.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFASetupChanged means the pending secret was replaced by another
	// SetupMFA after the code was checked against it.
	ErrMFASetupChanged = errors.New("mfa setup changed")
	// ErrMFANotConfigured is returned when no secret was ever set up.
	ErrMFANotConfigured = errors.New("mfa not configured")
	// ErrMFACodeMalformed rejects codes that are not exactly six digits.
	ErrMFACodeMalformed = errors.New("mfa code malformed")
	// ErrMFAInvalidCode is a well-formed code that did not verify.
	ErrMFAInvalidCode = errors.New("invalid mfa code")
	// ErrBackupCodeInvalid is returned for unknown or already used codes.
	ErrBackupCodeInvalid = errors.New("invalid backup code")
	// ErrPermissionDenied is the uniform authorization failure.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStoreUnavailable wraps session store and user store outages.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned by methods on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError names the request field that failed. Message is fixed
// text and never echoes the submitted value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RateLimitError is returned when a login, registration or MFA window is
// exhausted.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter extracts the retry hint from err, or zero.
func RetryAfter(err error) time.Duration {
	var le *RateLimitError
	if errors.As(err, &le) {
		return le.RetryAfter
	}
	return 0
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// fromLimiter maps internal limiter errors onto the public taxonomy.
func fromLimiter(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, rate.ErrRateLimited) {
		return &RateLimitError{RetryAfter: rate.RetryAfter(err)}
	}
	return unavailable(err)
}
