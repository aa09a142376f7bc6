package mfa

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// DefaultIssuer is shown by authenticator apps.
const DefaultIssuer = "LifePlan Navigator"

const (
	secretSize = 20
	codeDigits = 6
	period     = 30
	skew       = 1
)

// ErrMalformedCode is returned for anything other than exactly six ASCII digits.
var ErrMalformedCode = errors.New("mfa code must be 6 digits")

// Key is a freshly generated TOTP secret.
type Key struct {
	Secret string
	URL    string
}

// TOTP issues and validates RFC 6238 codes: SHA1, six digits, 30 second
// steps, one step of skew either side.
type TOTP struct {
	issuer string
}

// NewTOTP returns a TOTP using issuer, or DefaultIssuer when empty.
func NewTOTP(issuer string) *TOTP {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TOTP{issuer: issuer}
}

// Generate creates a 20 byte secret for account.
func (t *TOTP) Generate(account string) (Key, error) {
	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: account,
		Period:      period,
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, fmt.Errorf("mfa: generate secret: %w", err)
	}
	return Key{Secret: k.Secret(), URL: k.URL()}, nil
}

// Validate checks code against secret at now. Malformed codes return
// ErrMalformedCode before any HMAC is computed.
func (t *TOTP) Validate(secret, code string, now time.Time) (bool, error) {
	if !WellFormedCode(code) {
		return false, ErrMalformedCode
	}
	ok, err := totp.ValidateCustom(code, secret, now, validateOpts())
	if err != nil {
		return false, fmt.Errorf("mfa: validate: %w", err)
	}
	return ok, nil
}

// Code returns the current code for secret. Used by tests and the admin tool.
func (t *TOTP) Code(secret string, now time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, now, validateOpts())
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// WellFormedCode reports whether code is exactly six ASCII digits.
func WellFormedCode(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
