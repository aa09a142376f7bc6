// Package rate provides fixed-window attempt counters and the limiters built
// on them for login, registration and MFA verification.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. The
// remaining window (PTTL) is reported with every rejection so callers can
// send Retry-After. Key prefixes, under the store prefix:
//   - rl:login:<ip>:<email>  failed logins
//   - rl:register:<ip>       registrations
//   - rl:mfa:<user>          failed MFA codes
//
// Concurrent increments may overshoot by the number of in-flight requests;
// the property enforced is "bounded attempts", not "exactly N".
//
// # What this package must NOT do
//
//   - Decide what counts as a failure (the engine does).
//   - Be imported outside the authcore module.
package rate
