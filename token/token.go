// Package token provides the random token and constant-time comparison
// primitives shared by the CSRF guard, the session store and MFA backup codes.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Size is the number of random bytes in a generated token.
const Size = 32

// Generate returns Size bytes from the system CSPRNG, hex encoded.
func Generate() (string, error) {
	buf := make([]byte, Size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Equal compares two tokens in constant time. Inputs of different length
// are unequal without comparing contents.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// WellFormed reports whether s looks like a value produced by Generate.
func WellFormed(s string) bool {
	if len(s) != Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
