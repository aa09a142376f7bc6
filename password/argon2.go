package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// DefaultMaxPasswordBytes caps hashing input when Config.MaxPasswordBytes is zero.
const DefaultMaxPasswordBytes = 1024

const (
	argonID        = "argon2id"
	minPassBytes   = 12
	floorMemoryKB  = 8 * 1024
	floorSaltBytes = 16
	floorKeyBytes  = 16
)

// ErrMalformedHash is returned when a stored Argon2id string cannot be
// decoded. The wrapped message names the offending segment.
var ErrMalformedHash = errors.New("malformed argon2id hash")

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MaxPasswordBytes bounds the input to Hash and Verify. Zero means
	// DefaultMaxPasswordBytes.
	MaxPasswordBytes int
}

func (c Config) validate() error {
	switch {
	case c.Memory < floorMemoryKB:
		return fmt.Errorf("password memory must be >= %d KiB", floorMemoryKB)
	case c.Time < 1:
		return errors.New("password time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < floorSaltBytes:
		return fmt.Errorf("password salt length must be >= %d", floorSaltBytes)
	case c.KeyLength < floorKeyBytes:
		return fmt.Errorf("password key length must be >= %d", floorKeyBytes)
	}
	return nil
}

// Argon2 is the account password hasher. New hashes are Argon2id; hashes
// imported from the previous system (pbkdf2-sha512) still verify and are
// flagged by NeedsUpgrade so the engine can replace them at login.
type Argon2 struct {
	cfg Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{cfg: cfg}, nil
}

// phc is one decoded $argon2id$ string.
type phc struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argonID, argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key))
}

func (p phc) derive(pw string) []byte {
	return argon2.IDKey([]byte(pw), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
}

// Hash returns the PHC string for pw. Bytes are hashed as given; no Unicode
// normalization is applied.
func (a *Argon2) Hash(pw string) (string, error) {
	if len(pw) < minPassBytes {
		return "", ErrTooShort
	}
	if len(pw) > a.cfg.MaxPasswordBytes {
		return "", ErrTooLong
	}

	p := phc{
		memory:  a.cfg.Memory,
		time:    a.cfg.Time,
		threads: a.cfg.Parallelism,
		salt:    make([]byte, a.cfg.SaltLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	p.key = argon2.IDKey([]byte(pw), p.salt, p.time, p.memory, p.threads, a.cfg.KeyLength)
	return p.String(), nil
}

// Verify reports whether pw matches stored, an Argon2id or pbkdf2-sha512
// string. A false result with a nil error is a wrong password.
func (a *Argon2) Verify(pw, stored string) (bool, error) {
	if len(pw) > a.cfg.MaxPasswordBytes {
		return false, ErrTooLong
	}
	if isLegacy(stored) {
		return verifyLegacy(pw, stored)
	}

	p, err := decodePHC(stored)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(pw), p.key) == 1, nil
}

// NeedsUpgrade reports whether stored should be re-hashed after the next
// successful login. Legacy strings always qualify; Argon2id strings qualify
// when any cost is below the current config or the key length differs.
func (a *Argon2) NeedsUpgrade(stored string) (bool, error) {
	if isLegacy(stored) {
		return true, nil
	}
	p, err := decodePHC(stored)
	if err != nil {
		return false, err
	}
	weaker := p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.threads < a.cfg.Parallelism ||
		uint32(len(p.key)) != a.cfg.KeyLength
	return weaker, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, fmt.Sprintf(format, args...))
}

// decodePHC parses $argon2id$v=19$m=..,t=..,p=..$salt$key. Parameters must
// appear in that order; padded and unpadded base64 are both accepted.
func decodePHC(s string) (phc, error) {
	var p phc
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return p, malformed("expected 5 segments")
	}
	if fields[1] != argonID {
		return p, malformed("algorithm %q", fields[1])
	}
	if fields[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return p, malformed("version %q", fields[2])
	}

	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, malformed("parameters %q", fields[3])
	}
	if fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, p.threads) != fields[3] {
		return p, malformed("parameters %q", fields[3])
	}
	if p.memory < floorMemoryKB || p.time < 1 || p.threads < 1 {
		return p, malformed("parameters below floor")
	}

	var err error
	if p.salt, err = decodeB64(fields[4]); err != nil || len(p.salt) < floorSaltBytes {
		return p, malformed("salt")
	}
	if p.key, err = decodeB64(fields[5]); err != nil || len(p.key) == 0 {
		return p, malformed("key")
	}
	return p, nil
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
