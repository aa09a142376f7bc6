package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/lifeplan-navigator/authcore"
)

// Error codes carried in the "error" field of every failure body.
const (
	CodeValidationFailed   = "validation_failed"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"
	CodeMFARequired        = "mfa_required"
	CodeMFASetupRequired   = "mfa_setup_required"
	CodeForbidden          = "forbidden"
	CodeAccountDisabled    = "account_disabled"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeRateLimited        = "rate_limited"
	CodeUnavailable        = "service_unavailable"
	CodeInternal           = "internal_error"
)

// ErrorBody is the JSON failure envelope. Field is set for validation
// errors only and never carries the submitted value.
type ErrorBody struct {
	Error      string `json:"error"`
	Field      string `json:"field,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// Status maps an engine error to its HTTP status and error code.
func Status(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, authcore.ErrValidation),
		errors.Is(err, authcore.ErrMFACodeMalformed),
		errors.Is(err, authcore.ErrMFAInvalidCode),
		errors.Is(err, authcore.ErrBackupCodeInvalid),
		errors.Is(err, authcore.ErrMFAAlreadyEnabled),
		errors.Is(err, authcore.ErrPasswordReuse):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, authcore.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials
	case errors.Is(err, authcore.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, authcore.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, authcore.ErrMFARequired):
		return http.StatusForbidden, CodeMFARequired
	case errors.Is(err, authcore.ErrMFASetupRequired):
		return http.StatusForbidden, CodeMFASetupRequired
	case errors.Is(err, authcore.ErrPermissionDenied):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, authcore.ErrAccountDisabled):
		return http.StatusForbidden, CodeAccountDisabled
	case errors.Is(err, authcore.ErrUserNotFound),
		errors.Is(err, authcore.ErrMFANotConfigured):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, authcore.ErrAccountExists),
		errors.Is(err, authcore.ErrMFASetupChanged):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, authcore.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// WriteError writes the JSON envelope for err. Rate limit errors also set
// Retry-After in whole seconds.
func WriteError(w http.ResponseWriter, err error) {
	status, code := Status(err)
	body := ErrorBody{Error: code}

	var ve *authcore.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if status == http.StatusTooManyRequests {
		secs := int(math.Ceil(authcore.RetryAfter(err).Seconds()))
		if secs < 1 {
			secs = 1
		}
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	WriteJSON(w, status, body)
}

// WriteJSON writes v with status and a JSON content type.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
