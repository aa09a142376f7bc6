package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeplan-navigator/authcore"
	"github.com/lifeplan-navigator/authcore/authz"
	"github.com/lifeplan-navigator/authcore/store/sqlstore"
)

type fixture struct {
	users *sqlstore.UserRepository
	sink  *sqlstore.AuditSink
}

func openTestDB(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	applied, err := Migrate(ctx, db)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, applied)

	return fixture{users: NewUserStore(db), sink: NewAuditSink(db, nil)}
}

func newUser(id, email string) authcore.UserRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return authcore.UserRecord{
		ID:           id,
		Email:        email,
		Name:         "enc:v1:name",
		PasswordHash: "hash",
		Role:         authz.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserLifecycle(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, f.users.Create(ctx, newUser("u-1", "alice@example.com")))
	err := f.users.Create(ctx, newUser("u-2", "alice@example.com"))
	require.ErrorIs(t, err, authcore.ErrAccountExists)

	got, err := f.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
	assert.Equal(t, authz.RoleUser, got.Role)
	assert.False(t, got.MFAEnabled)
	assert.Empty(t, got.BackupCodes)

	_, err = f.users.GetByID(ctx, "missing")
	require.ErrorIs(t, err, authcore.ErrUserNotFound)

	require.NoError(t, f.users.UpdateName(ctx, "u-1", "enc:v1:renamed"))
	require.NoError(t, f.users.UpdatePassword(ctx, "u-1", "hash2"))
	got, err = f.users.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "enc:v1:renamed", got.Name)
	assert.Equal(t, "hash2", got.PasswordHash)
	assert.False(t, got.Disabled)

	require.NoError(t, f.users.SetDisabled(ctx, "u-1", true))
	got, err = f.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, got.Disabled)
	require.NoError(t, f.users.SetDisabled(ctx, "u-1", false))
	got, err = f.users.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, got.Disabled)
	require.ErrorIs(t, f.users.SetDisabled(ctx, "missing", true), authcore.ErrUserNotFound)
}

func TestMFAAndBackupCodes(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, newUser("u-1", "bob@example.com")))

	require.ErrorIs(t, f.users.EnableMFA(ctx, "u-1", ""), authcore.ErrMFANotConfigured)
	require.ErrorIs(t, f.users.EnableMFA(ctx, "missing", "x"), authcore.ErrUserNotFound)

	require.NoError(t, f.users.SetMFASecret(ctx, "u-1", "enc:v1:first", []string{"x"}))
	require.NoError(t, f.users.SetMFASecret(ctx, "u-1", "enc:v1:secret", []string{"h1", "h2", "h3"}))
	require.ErrorIs(t, f.users.EnableMFA(ctx, "u-1", "enc:v1:first"), authcore.ErrMFASetupChanged)
	require.NoError(t, f.users.EnableMFA(ctx, "u-1", "enc:v1:secret"))
	require.NoError(t, f.users.EnableMFA(ctx, "u-1", "enc:v1:secret"), "enabling the same secret twice")

	require.ErrorIs(t, f.users.SetMFASecret(ctx, "u-1", "enc:v1:other", []string{"z"}), authcore.ErrMFAAlreadyEnabled)
	require.ErrorIs(t, f.users.SetMFASecret(ctx, "missing", "enc:v1:other", nil), authcore.ErrUserNotFound)

	ok, err := f.users.ConsumeBackupCode(ctx, "u-1", "h2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.users.ConsumeBackupCode(ctx, "u-1", "h2")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := f.users.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, got.MFAEnabled)
	assert.Equal(t, []string{"h1", "h3"}, got.BackupCodes)
}

func TestConsumeBackupCodeOnce(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, newUser("u-1", "carol@example.com")))
	require.NoError(t, f.users.SetMFASecret(ctx, "u-1", "s", []string{"only"}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.users.ConsumeBackupCode(ctx, "u-1", "only")
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestAuditRoundTrip(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, code := range []string{"AUTH_LOGIN_FAILURE", "AUTH_LOGIN_SUCCESS"} {
		require.NoError(t, f.sink.Insert(ctx, authcore.AuditEvent{
			ID:        code,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Type:      "AUTH",
			Code:      code,
			Severity:  "info",
			ActorID:   "u-1",
			Success:   i == 1,
			Metadata:  map[string]any{"attempt": i},
		}))
	}
	require.NoError(t, f.sink.Insert(ctx, authcore.AuditEvent{
		ID: "other", Timestamp: base, Type: "SEC", Code: "SEC_CSRF_VIOLATION", Severity: "warning", ActorID: "u-2",
	}))

	events, err := f.sink.Recent(ctx, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "AUTH_LOGIN_SUCCESS", events[0].Code)
	assert.True(t, events[0].Success)
	assert.EqualValues(t, 1, events[0].Metadata["attempt"])

	all, err := f.sink.Recent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
