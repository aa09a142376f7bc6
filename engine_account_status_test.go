package authcore

import (
	"errors"
	"testing"

	"github.com/lifeplan-navigator/authcore/internal/audit"
)

func TestDisableAccountRevokesSessionsAndBlocksLogin(t *testing.T) {
	et := newEngineTest(t, nil)
	res := et.register(t, "disable@example.jp")
	second, err := et.engine.Login(et.ctx(), "disable@example.jp", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	n, err := et.engine.DisableAccount(et.ctx(), "operator", res.User.ID)
	if err != nil {
		t.Fatalf("DisableAccount failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sessions revoked, got %d", n)
	}
	for _, cookie := range []string{res.Cookie, second.Cookie} {
		if _, err := et.engine.Authenticate(et.ctx(), cookie); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected revoked session, got %v", err)
		}
	}

	if _, err := et.engine.Login(et.ctx(), "disable@example.jp", testPassword); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if _, err := et.engine.Login(et.ctx(), "disable@example.jp", "Wrong-Password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password must stay invalid_credentials, got %v", err)
	}
	if got := et.engine.MetricsSnapshot().Counters[MetricAccountDisabled]; got != 1 {
		t.Fatalf("account disabled counter = %d", got)
	}

	if err := et.engine.EnableAccount(et.ctx(), "operator", res.User.ID); err != nil {
		t.Fatalf("EnableAccount failed: %v", err)
	}
	if _, err := et.engine.Login(et.ctx(), "disable@example.jp", testPassword); err != nil {
		t.Fatalf("login after enable failed: %v", err)
	}

	codes := et.flushAudit()
	if !containsCode(codes, audit.CodeAccountDisable) || !containsCode(codes, audit.CodeAccountEnable) {
		t.Fatalf("expected account status audit events, got %v", codes)
	}
}

func TestDisableUnknownAccount(t *testing.T) {
	et := newEngineTest(t, nil)

	if _, err := et.engine.DisableAccount(et.ctx(), "operator", "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := et.engine.EnableAccount(et.ctx(), "operator", ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDisableAccountSessionStoreDown(t *testing.T) {
	et := newEngineTest(t, nil)
	res := et.register(t, "outage@example.jp")

	et.mr.SetError("LOADING")
	_, err := et.engine.DisableAccount(et.ctx(), "operator", res.User.ID)
	et.mr.SetError("")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !et.users.get(res.User.ID).Disabled {
		t.Fatal("account should stay disabled when revocation fails")
	}
}
