package authcore

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lifeplan-navigator/authcore/internal/logging"
	"github.com/lifeplan-navigator/authcore/session"
)

func TestAuthenticateRejectsMalformedCookies(t *testing.T) {
	et := newEngineTest(t, nil)

	for _, cookie := range []string{"", "short", strings.Repeat("z", 64), "../../etc/passwd"} {
		if _, err := et.engine.Authenticate(et.ctx(), cookie); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("cookie %q: expected ErrUnauthorized, got %v", cookie, err)
		}
	}
}

func TestAuthenticateSlidesIdleTimeout(t *testing.T) {
	et := newEngineTest(t, nil)
	res := et.register(t, "slide@example.jp")

	for i := 0; i < 4; i++ {
		et.clock.Advance(20 * time.Minute)
		if _, err := et.engine.Authenticate(et.ctx(), res.Cookie); err != nil {
			t.Fatalf("activity %d should keep the session alive: %v", i+1, err)
		}
	}
}

func TestAuthenticateIdleTimeout(t *testing.T) {
	et := newEngineTest(t, nil)
	res := et.register(t, "idle@example.jp")

	et.clock.Advance(30*time.Minute + time.Second)

	if _, err := et.engine.Authenticate(et.ctx(), res.Cookie); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected idle session to be rejected, got %v", err)
	}
	if et.engine.MetricsSnapshot().Counters[MetricSessionIdleExpired] != 1 {
		t.Fatal("expected idle-expired metric")
	}
	if _, err := et.engine.Authenticate(et.ctx(), res.Cookie); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("idle session must stay dead, got %v", err)
	}
}

func TestAuthenticateAbsoluteTimeout(t *testing.T) {
	et := newEngineTest(t, nil)
	res := et.register(t, "absolute@example.jp")

	// Stay active every 25 minutes until the 8 hour ceiling.
	for elapsed := time.Duration(0); elapsed+25*time.Minute < 8*time.Hour; elapsed += 25 * time.Minute {
		et.clock.Advance(25 * time.Minute)
		if _, err := et.engine.Authenticate(et.ctx(), res.Cookie); err != nil {
			t.Fatalf("session died early at %v: %v", elapsed+25*time.Minute, err)
		}
	}

	et.clock.Advance(25 * time.Minute)
	if _, err := et.engine.Authenticate(et.ctx(), res.Cookie); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected absolute timeout, got %v", err)
	}
}

func TestAuthenticateStoreUnavailableFailsClosed(t *testing.T) {
	var logs bytes.Buffer
	logger, err := logging.New("json", "debug", &logs)
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}

	et := newEngineTest(t, nil)
	res := et.register(t, "outage@example.jp")

	engine := &Engine{
		config:   et.engine.config,
		sessions: et.engine.sessions,
		users:    et.users,
		metrics:  NewMetrics(et.engine.config.Metrics),
		logger:   logger,
		now:      et.clock.Now,
	}

	et.mr.SetError("connection reset")
	_, err = engine.Authenticate(et.ctx(), res.Cookie)
	et.mr.SetError("")

	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if engine.MetricsSnapshot().Counters[MetricStoreUnavailable] != 1 {
		t.Fatal("expected store-unavailable metric")
	}
	if !strings.Contains(logs.String(), `"event":"store_unavailable"`) {
		t.Fatalf("expected distinct store outage log, got %s", logs.String())
	}
	if strings.Contains(logs.String(), res.SessionID) {
		t.Fatal("raw session id logged")
	}
}

func TestAuthenticateSignedCookie(t *testing.T) {
	et := newEngineTest(t, func(c *Config) {
		c.SessionToken.Enabled = true
		c.SessionToken.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	})
	res := et.register(t, "signed@example.jp")

	if res.Cookie == res.SessionID {
		t.Fatal("cookie should carry a signed assertion")
	}
	s, err := et.engine.Authenticate(et.ctx(), res.Cookie)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if s.ID != res.SessionID {
		t.Fatal("cookie resolved to wrong session")
	}
	if _, err := et.engine.Authenticate(et.ctx(), res.SessionID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bare session id must be rejected when signing is on, got %v", err)
	}

	if err := et.engine.Logout(et.ctx(), res.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := et.engine.Authenticate(et.ctx(), res.Cookie); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("valid signature must not outlive the session, got %v", err)
	}
}

func TestAuthenticateRecordsLatency(t *testing.T) {
	et := newEngineTest(t, nil)
	res := et.register(t, "latency@example.jp")

	if _, err := et.engine.Authenticate(et.ctx(), res.Cookie); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	var total uint64
	for _, n := range et.engine.MetricsSnapshot().Histograms[MetricAuthenticateLatency] {
		total += n
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
}

func TestRequireMFA(t *testing.T) {
	et := newEngineTest(t, nil)
	res := et.register(t, "gate@example.jp")
	s, err := et.engine.Authenticate(et.ctx(), res.Cookie)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if err := et.engine.RequireMFA(et.ctx(), s); !errors.Is(err, ErrMFASetupRequired) {
		t.Fatalf("expected ErrMFASetupRequired, got %v", err)
	}

	enabled := *s
	enabled.MFAEnabled = true
	if err := et.engine.RequireMFA(et.ctx(), &enabled); !errors.Is(err, ErrMFARequired) {
		t.Fatalf("expected ErrMFARequired, got %v", err)
	}

	verified := enabled
	verified.MFAVerified = true
	if err := et.engine.RequireMFA(et.ctx(), &verified); err != nil {
		t.Fatalf("verified session should pass: %v", err)
	}

	if err := et.engine.RequireMFA(et.ctx(), nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("nil session: expected ErrUnauthorized, got %v", err)
	}
}

func TestEngineWithMemorySessionStore(t *testing.T) {
	users := newMockUserStore()
	clock := newTestClock()
	store := session.NewMemoryStore(session.DefaultPolicy()).WithClock(clock.Now)

	engine, err := New().
		WithConfig(testConfig()).
		WithSessionStore(store).
		WithUserStore(users).
		withClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	res, err := engine.Register(WithClientIP(t.Context(), "127.0.0.1"), RegisterRequest{
		Email:    "memory@example.jp",
		Password: testPassword,
		Name:     "Memory",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := engine.Authenticate(t.Context(), res.Cookie); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if _, err := engine.Ping(t.Context()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
