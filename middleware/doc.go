// Package middleware adapts authcore.Engine to net/http.
//
// # Request gate
//
// [Gate.Protect] runs the checks in a fixed order:
//
//  1. CSRF double-submit check (403)
//  2. session cookie lookup through Engine.Authenticate (401)
//  3. MFA, when the route requires it (403 mfa_required / mfa_setup_required)
//  4. authorization against the resolved resource (403, uniform)
//
// A session store outage during step 2 is answered with 401 like any other
// missing session; the engine logs it separately with event=store_unavailable.
//
// # Supporting middleware
//
//   - [ClientInfo] puts the client IP and User-Agent on the context.
//   - [SecurityHeaders] sets CSP, HSTS (production) and the other browser headers.
//   - [RateLimit] is a per-IP token bucket in front of everything else.
//   - [Recovery] converts panics into a generic 500.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls and engine errors
// into JSON bodies via [WriteError]. It does NOT implement authentication
// logic itself.
//
// # What this package must NOT do
//
//   - Access Redis or the user store directly (Engine handles I/O).
//   - Echo request input in error bodies.
//   - Make authorization decisions beyond what Engine.Authorize returns.
package middleware
