// Package jwt signs the session cookie so that forged or truncated session
// ids are rejected before the session store is consulted.
//
// The cookie value is a compact JWS carrying uid and sid claims. Ed25519 and
// HS256 are supported; retired keys can stay in VerifyKeys by kid during a
// rotation. Revocation is not expressed in the token: the session store
// decides whether the sid is still alive.
package jwt
