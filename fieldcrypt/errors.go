package fieldcrypt

import "errors"

var (
	// ErrInvalidKey is returned when the master key is not 32 bytes.
	ErrInvalidKey = errors.New("fieldcrypt: key must be 32 bytes")
	// ErrMalformedEnvelope is returned when an envelope carries a known prefix but cannot be parsed.
	ErrMalformedEnvelope = errors.New("fieldcrypt: malformed envelope")
	// ErrDecrypt is returned when authentication of the ciphertext fails.
	ErrDecrypt = errors.New("fieldcrypt: decryption failed")
	// ErrSearchOnly is returned when a deterministic envelope is passed to Decrypt.
	ErrSearchOnly = errors.New("fieldcrypt: deterministic envelope is search-only")
	// ErrSensitiveField is returned when deterministic mode is requested for a sensitive field.
	ErrSensitiveField = errors.New("fieldcrypt: deterministic mode not allowed for sensitive field")
	// ErrSelfTest is returned when the startup round trip does not reproduce its input.
	ErrSelfTest = errors.New("fieldcrypt: self test failed")
)
