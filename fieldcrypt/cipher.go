package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	// KeySize is the required master key length.
	KeySize = 32
	// IVSize is the GCM nonce length used for both envelope formats.
	IVSize  = 16
	tagSize = 16

	// PrefixRandom marks a retrievable envelope.
	PrefixRandom = "enc:v1:"
	// PrefixDeterministic marks a search-only envelope.
	PrefixDeterministic = "det:v1:"

	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// Cipher holds the master key and the per-field derived keys.
type Cipher struct {
	aead cipher.AEAD
	key  []byte

	mu        sync.RWMutex
	fieldKeys map[string][]byte
}

// New builds a Cipher from a raw 32 byte key. The key is copied.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	k := append([]byte(nil), key...)
	aead, err := newGCM(k)
	if err != nil {
		return nil, err
	}
	return &Cipher{
		aead:      aead,
		key:       k,
		fieldKeys: make(map[string][]byte),
	}, nil
}

// NewFromBase64 decodes a standard base64 key, the format used by the
// ENCRYPTION_KEY environment variable.
func NewFromBase64(s string) (*Cipher, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return New(raw)
}

// GenerateKey returns a fresh random master key encoded as base64.
func GenerateKey() (string, error) {
	buf := make([]byte, KeySize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return cipher.NewGCMWithNonceSize(block, IVSize)
}

// Encrypt seals plaintext under a fresh random IV. Empty input is returned
// unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("fieldcrypt: read iv: %w", err)
	}
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := splitTag(sealed)
	return PrefixRandom + b64(iv) + ":" + b64(tag) + ":" + b64(ct), nil
}

// Decrypt opens an enc:v1 envelope. Strings without a recognised prefix are
// treated as plaintext and returned as is. Deterministic envelopes return
// ErrSearchOnly.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	if strings.HasPrefix(envelope, PrefixDeterministic) {
		return "", ErrSearchOnly
	}
	if !strings.HasPrefix(envelope, PrefixRandom) {
		return envelope, nil
	}
	parts := strings.Split(envelope[len(PrefixRandom):], ":")
	if len(parts) != 3 {
		return "", ErrMalformedEnvelope
	}
	iv, err := unb64(parts[0])
	if err != nil || len(iv) != IVSize {
		return "", ErrMalformedEnvelope
	}
	tag, err := unb64(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformedEnvelope
	}
	ct, err := unb64(parts[2])
	if err != nil {
		return "", ErrMalformedEnvelope
	}
	plain, err := c.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// EncryptDeterministic produces a det:v1 envelope that is identical for
// identical (plaintext, field) pairs. The result can be compared for
// equality but never decrypted.
func (c *Cipher) EncryptDeterministic(plaintext, field string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if field == "" || strings.Contains(field, ":") {
		return "", fmt.Errorf("%w: invalid field name", ErrMalformedEnvelope)
	}
	if IsSensitive(field) {
		return "", ErrSensitiveField
	}
	key, err := c.fieldKey(field)
	if err != nil {
		return "", err
	}
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(field + ":" + plaintext))
	sealed := aead.Seal(nil, sum[:IVSize], []byte(plaintext), nil)
	ct, tag := splitTag(sealed)
	return PrefixDeterministic + field + ":" + b64(tag) + ":" + b64(ct), nil
}

// HashForSearch returns base64(SHA-256(fieldKey || plaintext)), the lookup
// companion stored next to a retrievable enc:v1 field.
func (c *Cipher) HashForSearch(plaintext, field string) (string, error) {
	key, err := c.fieldKey(field)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(key)
	h.Write([]byte(plaintext))
	return b64(h.Sum(nil)), nil
}

// SelfTest round-trips a random value through Encrypt and Decrypt.
func (c *Cipher) SelfTest() error {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	sample := "self-test-" + hex.EncodeToString(buf)
	env, err := c.Encrypt(sample)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSelfTest, err)
	}
	got, err := c.Decrypt(env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSelfTest, err)
	}
	if got != sample {
		return ErrSelfTest
	}
	return nil
}

func (c *Cipher) fieldKey(field string) ([]byte, error) {
	c.mu.RLock()
	k, ok := c.fieldKeys[field]
	c.mu.RUnlock()
	if ok {
		return k, nil
	}

	k, err := scrypt.Key(c.key, []byte("deterministic:"+field), scryptN, scryptR, scryptP, KeySize)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: derive field key: %w", err)
	}

	c.mu.Lock()
	if existing, ok := c.fieldKeys[field]; ok {
		k = existing
	} else {
		c.fieldKeys[field] = k
	}
	c.mu.Unlock()
	return k, nil
}

// IsEncrypted reports whether s carries either envelope prefix.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, PrefixRandom) || strings.HasPrefix(s, PrefixDeterministic)
}

func splitTag(sealed []byte) (ct, tag []byte) {
	n := len(sealed) - tagSize
	return sealed[:n], sealed[n:]
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
