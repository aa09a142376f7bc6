package mfa

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
)

func TestGenerateKey(t *testing.T) {
	m := NewTOTP("")
	k, err := m.Generate("taro@example.jp")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(k.Secret) != 32 {
		t.Fatalf("20 byte secret should be 32 base32 chars, got %d", len(k.Secret))
	}
	key, err := otp.NewKeyFromURL(k.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if key.Issuer() != DefaultIssuer || key.AccountName() != "taro@example.jp" {
		t.Fatalf("unexpected key %s / %s", key.Issuer(), key.AccountName())
	}
	if key.Period() != 30 || key.Digits() != otp.DigitsSix || key.Algorithm() != otp.AlgorithmSHA1 {
		t.Fatal("unexpected TOTP parameters")
	}
}

func TestValidateWithinSkew(t *testing.T) {
	m := NewTOTP("")
	k, _ := m.Generate("u")
	now := time.Date(2026, 4, 1, 12, 0, 15, 0, time.UTC)

	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := m.Code(k.Secret, now.Add(offset))
		if err != nil {
			t.Fatalf("code: %v", err)
		}
		ok, err := m.Validate(k.Secret, code, now)
		if err != nil || !ok {
			t.Fatalf("offset %v should validate: ok=%v err=%v", offset, ok, err)
		}
	}

	old, _ := m.Code(k.Secret, now.Add(-2*time.Minute))
	ok, err := m.Validate(k.Secret, old, now)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("code outside skew must fail")
	}
}

func TestValidateRejectsMalformedBeforeCrypto(t *testing.T) {
	m := NewTOTP("")
	for _, code := range []string{"", "12345", "1234567", "12a456", " 12345", "１２３４５６"} {
		if _, err := m.Validate("not-even-base32!", code, time.Now()); !errors.Is(err, ErrMalformedCode) {
			t.Fatalf("code %q: expected ErrMalformedCode, got %v", code, err)
		}
	}
}

func TestStateOf(t *testing.T) {
	if StateOf("", false) != Disabled || StateOf("S", false) != SetupPending || StateOf("S", true) != Enabled {
		t.Fatal("state derivation mismatch")
	}
}

func TestBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(DefaultBackupCodeCount)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	pattern := regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`)
	for _, c := range codes {
		if !pattern.MatchString(c) {
			t.Fatalf("bad code format %q", c)
		}
	}

	hashes := HashBackupCodes("u-1", codes)
	for _, h := range hashes {
		for _, c := range codes {
			if strings.Contains(h, strings.ReplaceAll(c, "-", "")) {
				t.Fatal("hash leaks plaintext")
			}
		}
	}

	idx, err := MatchBackupCode("u-1", strings.ToLower(strings.ReplaceAll(codes[3], "-", "")), hashes)
	if err != nil || idx != 3 {
		t.Fatalf("expected match at 3, got %d err=%v", idx, err)
	}
	idx, err = MatchBackupCode("u-2", codes[3], hashes)
	if err != nil || idx != -1 {
		t.Fatalf("hash must be bound to user, got %d", idx)
	}
	if _, err := MatchBackupCode("u-1", "xyz", hashes); !errors.Is(err, ErrBackupCodeMalformed) {
		t.Fatalf("expected ErrBackupCodeMalformed, got %v", err)
	}
}
