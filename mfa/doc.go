// Package mfa provides TOTP enrolment and verification plus single-use
// backup codes.
//
// # Account states
//
//	Disabled -> SetupPending -> Enabled
//
// A secret is stored when setup starts; the account becomes Enabled only
// after one successful setup verification. Login verification never changes
// account state.
//
// # What this package must NOT do
//
//   - Persist anything. Storage belongs to the user store.
//   - Keep plaintext backup codes after they are returned from Generate.
package mfa
