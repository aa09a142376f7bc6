package password

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	legacyPrefix     = "pbkdf2-sha512"
	legacyIterations = 600000
	legacyKeyLength  = 64
	legacySaltLength = 32
)

var (
	// ErrTooShort is returned by Hash for passwords under 12 bytes.
	ErrTooShort = errors.New("password must be at least 12 bytes")
	// ErrTooLong is returned by Hash and Verify for oversized input.
	ErrTooLong = errors.New("password exceeds maximum length")
	// ErrInvalidLegacyHash is returned for malformed pbkdf2-sha512 strings.
	ErrInvalidLegacyHash = errors.New("invalid legacy hash format")
)

// DummyHash is verified when the account does not exist so that unknown
// and known e-mail addresses take comparable time.
const DummyHash = "$argon2id$v=19$m=65536,t=3,p=2$ZHVtbXlzYWx0ZHVtbXlzYWx0$ZHVtbXloYXNoZHVtbXloYXNoZHVtbXloYXNoZHVtbXk="

func isLegacy(encoded string) bool {
	return strings.HasPrefix(encoded, legacyPrefix+"$")
}

// format: pbkdf2-sha512$<iterations>$<b64 salt>$<b64 key>
func verifyLegacy(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != legacyPrefix {
		return false, ErrInvalidLegacyHash
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations < 1 {
		return false, ErrInvalidLegacyHash
	}
	salt, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return false, ErrInvalidLegacyHash
	}
	want, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil || len(want) == 0 {
		return false, ErrInvalidLegacyHash
	}

	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// LegacyHash produces a pbkdf2-sha512 hash. It exists for importing
// fixtures and tests; new accounts always use Hash.
func LegacyHash(password string, salt []byte, iterations int) string {
	if iterations <= 0 {
		iterations = legacyIterations
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, legacyKeyLength, sha512.New)
	return legacyPrefix + "$" + strconv.Itoa(iterations) + "$" +
		base64.StdEncoding.EncodeToString(salt) + "$" +
		base64.StdEncoding.EncodeToString(key)
}
