package internaldefs

import (
	"github.com/lifeplan-navigator/authcore"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter fed by Engine.AuditDropped.
const AuditDroppedName = "lifeplan_audit_dropped_total"

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "lifeplan_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "lifeplan_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginRateLimited, Name: "lifeplan_login_rate_limited_total", Help: "Login attempts rejected by the lockout window."},
	{ID: authcore.MetricRegistrationSuccess, Name: "lifeplan_registration_success_total", Help: "Successful registrations."},
	{ID: authcore.MetricRegistrationDuplicate, Name: "lifeplan_registration_duplicate_total", Help: "Registrations rejected because the email exists."},
	{ID: authcore.MetricRegistrationRateLimited, Name: "lifeplan_registration_rate_limited_total", Help: "Registrations rejected by the per-IP window."},
	{ID: authcore.MetricSessionCreated, Name: "lifeplan_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionEvicted, Name: "lifeplan_session_evicted_total", Help: "Sessions evicted by the concurrent-session limit."},
	{ID: authcore.MetricSessionExpired, Name: "lifeplan_session_expired_total", Help: "Sessions rejected after the absolute timeout."},
	{ID: authcore.MetricSessionIdleExpired, Name: "lifeplan_session_idle_expired_total", Help: "Sessions rejected after the idle timeout."},
	{ID: authcore.MetricSessionDestroyed, Name: "lifeplan_session_destroyed_total", Help: "Sessions destroyed by logout or password change."},
	{ID: authcore.MetricLogout, Name: "lifeplan_logout_total", Help: "Single-session logout operations."},
	{ID: authcore.MetricLogoutAll, Name: "lifeplan_logout_all_total", Help: "Sign-out-everywhere operations."},
	{ID: authcore.MetricCSRFRejected, Name: "lifeplan_csrf_rejected_total", Help: "State-changing requests rejected by CSRF validation."},
	{ID: authcore.MetricMFASetup, Name: "lifeplan_mfa_setup_total", Help: "MFA setup operations."},
	{ID: authcore.MetricMFAEnabled, Name: "lifeplan_mfa_enabled_total", Help: "Accounts that completed MFA setup."},
	{ID: authcore.MetricMFAVerifySuccess, Name: "lifeplan_mfa_verify_success_total", Help: "Successful TOTP verifications."},
	{ID: authcore.MetricMFAVerifyFailure, Name: "lifeplan_mfa_verify_failure_total", Help: "Failed TOTP verifications."},
	{ID: authcore.MetricMFARateLimited, Name: "lifeplan_mfa_rate_limited_total", Help: "MFA attempts rejected by the attempt window."},
	{ID: authcore.MetricBackupCodeUsed, Name: "lifeplan_backup_code_used_total", Help: "Consumed backup codes."},
	{ID: authcore.MetricBackupCodeFailed, Name: "lifeplan_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: authcore.MetricAuthzDenied, Name: "lifeplan_authz_denied_total", Help: "Requests denied by the authorization engine."},
	{ID: authcore.MetricStoreUnavailable, Name: "lifeplan_store_unavailable_total", Help: "Requests that failed closed because the session store was unreachable."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "lifeplan_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordChangeInvalidOld, Name: "lifeplan_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: authcore.MetricPasswordChangeReuseRejected, Name: "lifeplan_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: authcore.MetricAccountDisabled, Name: "lifeplan_account_disabled_total", Help: "Accounts disabled by an operator."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "lifeplan_authenticate_latency_seconds", Help: "Session authentication latency."},
}

// HistogramBounds are the upper bounds of the eight latency buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
