package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/lifeplan-navigator/authcore/token"
)

// DefaultBackupCodeCount is the number of codes issued at setup.
const DefaultBackupCodeCount = 10

const backupCodeBytes = 4

// ErrBackupCodeMalformed is returned when a presented code cannot be normalized.
var ErrBackupCodeMalformed = errors.New("backup code malformed")

// GenerateBackupCodes returns n codes formatted XXXX-XXXX (upper-case hex).
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	buf := make([]byte, backupCodeBytes)
	for i := 0; i < n; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		raw := strings.ToUpper(hex.EncodeToString(buf))
		codes = append(codes, raw[:4]+"-"+raw[4:])
	}
	return codes, nil
}

// NormalizeBackupCode strips separators and whitespace and upper-cases.
func NormalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// HashBackupCode returns hex(SHA-256(userID || 0x00 || normalized code)).
// The user id salts the hash so equal codes differ between accounts.
func HashBackupCode(userID, code string) string {
	canonical := NormalizeBackupCode(code)
	data := make([]byte, 0, len(userID)+1+len(canonical))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonical...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBackupCodes hashes every code for userID.
func HashBackupCodes(userID string, codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = HashBackupCode(userID, c)
	}
	return out
}

// MatchBackupCode returns the index of the stored hash matching code, or -1.
// Every stored hash is compared so timing does not reveal the position.
func MatchBackupCode(userID, code string, hashes []string) (int, error) {
	canonical := NormalizeBackupCode(code)
	if len(canonical) != backupCodeBytes*2 {
		return -1, ErrBackupCodeMalformed
	}
	want := HashBackupCode(userID, canonical)
	idx := -1
	for i, h := range hashes {
		if token.Equal(h, want) && idx < 0 {
			idx = i
		}
	}
	return idx, nil
}
