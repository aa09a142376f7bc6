package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// base64 of "0123456789abcdef0123456789abcdef"
const testEncryptionKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

const (
	testPassword    = "Correct-Horse-42!"
	testNewPassword = "Battery-Staple-77?"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockUserStore struct {
	mu      sync.Mutex
	byID    map[string]UserRecord
	byEmail map[string]string
	failAll error

	updatePasswordCalls int
	consumeCalls        int

	// beforeEnableMFA runs at the start of EnableMFA, outside the lock.
	beforeEnableMFA func()
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byID:    map[string]UserRecord{},
		byEmail: map[string]string{},
	}
}

func (m *mockUserStore) Create(_ context.Context, u UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	if _, ok := m.byEmail[u.Email]; ok {
		return ErrAccountExists
	}
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *mockUserStore) GetByID(_ context.Context, id string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return UserRecord{}, m.failAll
	}
	u, ok := m.byID[id]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	u.BackupCodes = append([]string(nil), u.BackupCodes...)
	return u, nil
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (UserRecord, error) {
	m.mu.Lock()
	id, ok := m.byEmail[email]
	fail := m.failAll
	m.mu.Unlock()
	if fail != nil {
		return UserRecord{}, fail
	}
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserStore) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePasswordCalls++
	u, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *mockUserStore) UpdateName(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Name = name
	m.byID[id] = u
	return nil
}

func (m *mockUserStore) SetDisabled(_ context.Context, id string, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Disabled = disabled
	m.byID[id] = u
	return nil
}

func (m *mockUserStore) SetMFASecret(_ context.Context, id, secret string, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	if u.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	u.MFASecret = secret
	u.BackupCodes = append([]string(nil), hashes...)
	m.byID[id] = u
	return nil
}

func (m *mockUserStore) EnableMFA(_ context.Context, id, secret string) error {
	if m.beforeEnableMFA != nil {
		m.beforeEnableMFA()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	if u.MFASecret == "" {
		return ErrMFANotConfigured
	}
	if u.MFASecret != secret {
		return ErrMFASetupChanged
	}
	u.MFAEnabled = true
	m.byID[id] = u
	return nil
}

func (m *mockUserStore) ConsumeBackupCode(_ context.Context, id, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumeCalls++
	u, ok := m.byID[id]
	if !ok {
		return false, ErrUserNotFound
	}
	for i, h := range u.BackupCodes {
		if h == hash {
			u.BackupCodes = append(u.BackupCodes[:i:i], u.BackupCodes[i+1:]...)
			m.byID[id] = u
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserStore) get(id string) UserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

// testConfig keeps Argon2 at its floor so the suite stays fast.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Encryption.Key = testEncryptionKey
	return cfg
}

type engineTest struct {
	engine *Engine
	users  *mockUserStore
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
	sink   *recordingSink
}

// recordingSink collects audit events synchronously.
type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, ev AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Code)
	}
	return out
}

func newEngineTest(t *testing.T, mutate func(*Config)) *engineTest {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	users := newMockUserStore()
	clock := newTestClock()
	sink := &recordingSink{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithAuditSink(sink).
		withClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineTest{engine: engine, users: users, mr: mr, rdb: rdb, clock: clock, sink: sink}
}

func (et *engineTest) ctx() context.Context {
	ctx := WithClientIP(context.Background(), "203.0.113.7")
	return WithUserAgent(ctx, "test-agent/1.0")
}

// flushAudit closes the dispatcher so every queued event reaches the sink.
func (et *engineTest) flushAudit() []string {
	et.engine.Close()
	return et.sink.codes()
}

func (et *engineTest) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := et.engine.Register(et.ctx(), RegisterRequest{
		Email:    email,
		Password: testPassword,
		Name:     "Hanako Yamada",
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return res
}
