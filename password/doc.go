// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Accounts imported from the previous system carry
//
//	pbkdf2-sha512$<iterations>$<b64 salt>$<b64 key>
//
// which [Argon2.Verify] still accepts. [Argon2.NeedsUpgrade] reports true for
// those and for Argon2id hashes with weaker parameters, so the caller can
// re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// character classes, common passwords) is enforced by the engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
