// Package session stores authenticated browser sessions and enforces the
// idle, absolute and concurrent-session limits.
//
// # Redis layout
//
// All keys share a configurable prefix (default "lifeplan:"):
//
//	<prefix>session:<sid>          HASH  data, user_id, last_activity, expires_at, mfa_verified
//	<prefix>user_sessions:<uid>    ZSET  sid scored by createdAt (ms)
//
// The session hash expires at min(expiresAt, lastActivity+idleTimeout).
// Create+evict, touch, destroy, destroy-all and the MFA flag update each run
// as one Lua script so two concurrent logins for the same user cannot both
// miss the eviction. The reverse index is advisory; the session hash is the
// source of truth and the index is repaired whenever it is walked.
//
// # Architecture boundaries
//
// This package owns [Store], [RedisStore], [MemoryStore] and the [Session]
// model. It does NOT check credentials, evaluate abilities or decide MFA
// requirements.
//
// # What this package must NOT do
//
//   - Import authcore, authz or mfa (no upward imports).
//   - Report a session as valid when the backend cannot be reached.
package session
