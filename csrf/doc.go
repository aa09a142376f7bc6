// Package csrf implements the synchronizer token pattern used by every
// state-changing route.
//
// # Flow
//
// The token endpoint sets an HttpOnly cookie (__Host-csrf-token) and returns
// the same value in the JSON body. Clients cache the body value and echo it
// in the X-CSRF-Token header. A POST, PUT, PATCH or DELETE request passes
// only if both values are present and equal under constant-time comparison.
//
// # Request states
//
//	Unchecked -> Exempt | Validated | Rejected
//
// # What this package must NOT do
//
//   - Tell the client which side of the pair was missing.
//   - Store tokens server side; the cookie is the only copy.
package csrf
