// Package fieldcrypt encrypts individual record fields with AES-256-GCM.
//
// Two envelope formats are produced:
//
//	enc:v1:<b64 iv>:<b64 tag>:<b64 ciphertext>      retrievable, random 16 byte IV
//	det:v1:<field>:<b64 tag>:<b64 ciphertext>       search-only, IV derived from field+plaintext
//
// Deterministic envelopes leak equality between records and are never
// decrypted. A field that must be read back uses the enc:v1 form and keeps a
// HashForSearch value in a separate index column for lookups.
//
// # What this package must NOT do
//
//   - Return partial plaintext when a tag check fails.
//   - Apply deterministic mode to any name in SensitiveFields.
package fieldcrypt
