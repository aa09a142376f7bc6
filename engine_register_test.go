package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lifeplan-navigator/authcore/authz"
	"github.com/lifeplan-navigator/authcore/fieldcrypt"
	"github.com/lifeplan-navigator/authcore/internal/audit"
)

func TestRegisterCreatesUserAndSession(t *testing.T) {
	et := newEngineTest(t, nil)

	res := et.register(t, "  Hanako@Example.JP ")

	if res.User.Email != "hanako@example.jp" {
		t.Fatalf("email not normalized: %q", res.User.Email)
	}
	if res.User.Role != authz.RoleUser {
		t.Fatalf("expected role user, got %s", res.User.Role)
	}
	if res.User.Name != "Hanako Yamada" {
		t.Fatalf("expected decrypted name, got %q", res.User.Name)
	}
	if res.MFARequired {
		t.Fatal("new accounts have no MFA")
	}

	stored := et.users.get(res.User.ID)
	if !fieldcrypt.IsEncrypted(stored.Name) {
		t.Fatalf("name stored in plaintext: %q", stored.Name)
	}
	if !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Fatalf("unexpected hash format %q", stored.PasswordHash)
	}

	s, err := et.engine.Authenticate(et.ctx(), res.Cookie)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if s.UserID != res.User.ID || s.MFAVerified {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.IPAddress != "203.0.113.7" || s.UserAgent != "test-agent/1.0" {
		t.Fatalf("client info not recorded: %q %q", s.IPAddress, s.UserAgent)
	}

	if et.engine.MetricsSnapshot().Counters[MetricRegistrationSuccess] != 1 {
		t.Fatal("expected registration metric")
	}
	if !containsCode(et.flushAudit(), audit.CodeUserCreate) {
		t.Fatal("expected user create audit event")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	et := newEngineTest(t, nil)
	et.register(t, "taro@example.jp")

	_, err := et.engine.Register(et.ctx(), RegisterRequest{
		Email:    "TARO@example.jp",
		Password: testPassword,
		Name:     "Taro",
	})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if et.engine.MetricsSnapshot().Counters[MetricRegistrationDuplicate] != 1 {
		t.Fatal("expected duplicate metric")
	}
}

func TestRegisterValidation(t *testing.T) {
	et := newEngineTest(t, nil)

	tests := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{"missing email", RegisterRequest{Password: testPassword, Name: "A"}, "email"},
		{"bad email", RegisterRequest{Email: "not-an-email", Password: testPassword, Name: "A"}, "email"},
		{"long email", RegisterRequest{Email: strings.Repeat("a", 250) + "@x.jp", Password: testPassword, Name: "A"}, "email"},
		{"short password", RegisterRequest{Email: "a@x.jp", Password: "Sh0rt!", Name: "A"}, "password"},
		{"single class password", RegisterRequest{Email: "a@x.jp", Password: "alllowercaseletters", Name: "A"}, "password"},
		{"common password", RegisterRequest{Email: "a@x.jp", Password: "P@ssw0rd1234", Name: "A"}, "password"},
		{"empty name", RegisterRequest{Email: "a@x.jp", Password: testPassword, Name: "   "}, "name"},
		{"markup in name", RegisterRequest{Email: "a@x.jp", Password: testPassword, Name: "<script>"}, "name"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithClientIP(context.Background(), fmt.Sprintf("198.51.100.%d", i+1))
			_, err := et.engine.Register(ctx, tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("expected field %s, got %s", tt.field, ve.Field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatal("ValidationError must match ErrValidation")
			}
			if tt.req.Password != "" && strings.Contains(err.Error(), tt.req.Password) {
				t.Fatal("error echoes the submitted password")
			}
		})
	}
}

func TestRegisterAcceptsJapaneseName(t *testing.T) {
	et := newEngineTest(t, nil)

	res, err := et.engine.Register(et.ctx(), RegisterRequest{
		Email:    "yamada@example.jp",
		Password: testPassword,
		Name:     "山田 花子",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.User.Name != "山田 花子" {
		t.Fatalf("unexpected name %q", res.User.Name)
	}
}

func TestRegisterRateLimitedPerIP(t *testing.T) {
	et := newEngineTest(t, nil)

	for i := 0; i < 3; i++ {
		et.register(t, fmt.Sprintf("user%d@example.jp", i))
	}

	_, err := et.engine.Register(et.ctx(), RegisterRequest{
		Email:    "user4@example.jp",
		Password: testPassword,
		Name:     "Four",
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if RetryAfter(err) <= 0 {
		t.Fatalf("expected retry-after hint, got %v", RetryAfter(err))
	}

	other := WithClientIP(context.Background(), "192.0.2.99")
	if _, err := et.engine.Register(other, RegisterRequest{
		Email:    "user4@example.jp",
		Password: testPassword,
		Name:     "Four",
	}); err != nil {
		t.Fatalf("other IP should not be limited: %v", err)
	}

	if et.engine.MetricsSnapshot().Counters[MetricRegistrationRateLimited] != 1 {
		t.Fatal("expected rate-limited metric")
	}
	if !containsCode(et.flushAudit(), audit.CodeRateLimited) {
		t.Fatal("expected rate limit audit event")
	}
}

func TestRegisterUserStoreOutage(t *testing.T) {
	et := newEngineTest(t, nil)
	et.users.failAll = errors.New("connection refused")

	_, err := et.engine.Register(et.ctx(), RegisterRequest{
		Email:    "down@example.jp",
		Password: testPassword,
		Name:     "Down",
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCreateUserByOperator(t *testing.T) {
	et := newEngineTest(t, nil)

	u, err := et.engine.CreateUser(et.ctx(), "operator", RegisterRequest{
		Email:    "Support@Example.com",
		Password: testPassword,
		Name:     "Support Desk",
	}, authz.RoleSupport)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.Role != authz.RoleSupport || u.Email != "support@example.com" || u.Name != "Support Desk" {
		t.Fatalf("unexpected user %+v", u)
	}
	if !containsCode(et.flushAudit(), audit.CodeUserCreate) {
		t.Fatal("expected user create audit event")
	}

	sessions, err := et.engine.ListSessions(et.ctx(), u.ID, "")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("operator provisioning must not start a session, got %d", len(sessions))
	}

	_, err = et.engine.CreateUser(et.ctx(), "operator", RegisterRequest{
		Email: "x@example.com", Password: testPassword, Name: "X",
	}, authz.Role("root"))
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "role" {
		t.Fatalf("expected role validation error, got %v", err)
	}
}
