// Package authcore is the authentication, session and authorization core of
// LifePlan Navigator: registration and password login, Redis-backed server
// sessions with idle and absolute timeouts, TOTP multi-factor authentication
// with backup codes, double-submit CSRF protection and role/ownership based
// authorization.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserStore] contract and value types (AuthResult, SessionInfo,
// MetricsSnapshot). Session storage lives in package session, rate-limit
// counters and audit dispatch under internal/, and the HTTP gate in package
// middleware.
//
// # What this package must NOT do
//
//   - Return or log raw session ids outside AuthResult; logs and audit events
//     carry a session handle instead.
//   - Treat a session store outage as a valid session. Authenticate fails
//     closed with [ErrStoreUnavailable].
//   - Echo submitted values in errors. [ValidationError] names the field only.
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Request order
//
// A gated request runs CSRF validation, then [Engine.Authenticate], then
// [Engine.RequireMFA] when the route needs it, then [Engine.Authorize].
package authcore
