package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lifeplan-navigator/authcore"
	"github.com/lifeplan-navigator/authcore/authz"
)

var errDuplicate = errors.New("duplicate key")

var testDialect = Dialect{
	Name:              "test",
	IsUniqueViolation: func(err error) bool { return errors.Is(err, errDuplicate) },
}

var columns = []string{"id", "email", "name", "password_hash", "role", "mfa_secret", "mfa_enabled", "backup_codes", "created_at", "updated_at", "disabled"}

func newRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	repo := NewUserRepository(db, testDialect)
	repo.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return repo, mock, db
}

func sampleUser() authcore.UserRecord {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return authcore.UserRecord{
		ID:           "u-1",
		Email:        "alice@example.com",
		Name:         "enc:v1:abc",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		Role:         authz.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	u := sampleUser()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users\s*\(id,\s*email,.*VALUES\s*\(\$1,.*\$11\)$`).
		WithArgs(u.ID, u.Email, u.Name, u.PasswordHash, "user", "", false, "[]", u.CreatedAt, u.UpdatedAt, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+users`).WillReturnError(errDuplicate)

	err := repo.Create(context.Background(), sampleUser())
	if !errors.Is(err, authcore.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), sampleUser())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	u := sampleUser()
	rows := sqlmock.NewRows(columns).
		AddRow(u.ID, u.Email, u.Name, u.PasswordHash, "admin", "enc:v1:secret", true, `["h1","h2"]`, u.CreatedAt, u.UpdatedAt, true)
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs(u.Email).
		WillReturnRows(rows)

	got, err := repo.GetByEmail(context.Background(), u.Email)
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if got.ID != u.ID || got.Role != authz.RoleAdmin || !got.MFAEnabled || !got.Disabled {
		t.Fatalf("unexpected user: %+v", got)
	}
	if len(got.BackupCodes) != 2 || got.BackupCodes[1] != "h2" {
		t.Fatalf("unexpected backup codes: %v", got.BackupCodes)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateName_NoRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+users\s+SET\s+name\s*=\s*\$1,\s*updated_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3`).
		WithArgs("enc:v1:new", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateName(context.Background(), "missing", "enc:v1:new")
	if !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestEnableMFA_WithoutSecret(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	u := sampleUser()
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+mfa_enabled\s*=\s*TRUE.*mfa_secret\s*=\s*\$3.*mfa_enabled\s*=\s*FALSE`).
		WithArgs(sqlmock.AnyArg(), u.ID, "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(u.ID).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(u.ID, u.Email, u.Name, u.PasswordHash, "user", "", false, "[]", u.CreatedAt, u.UpdatedAt, false))

	err := repo.EnableMFA(context.Background(), u.ID, "")
	if !errors.Is(err, authcore.ErrMFANotConfigured) {
		t.Fatalf("expected ErrMFANotConfigured, got %v", err)
	}
}

func TestEnableMFA_SecretReplaced(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	u := sampleUser()
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+mfa_enabled\s*=\s*TRUE`).
		WithArgs(sqlmock.AnyArg(), u.ID, "enc:v1:verified").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(u.ID).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(u.ID, u.Email, u.Name, u.PasswordHash, "user", "enc:v1:replacement", false, "[]", u.CreatedAt, u.UpdatedAt, false))

	err := repo.EnableMFA(context.Background(), u.ID, "enc:v1:verified")
	if !errors.Is(err, authcore.ErrMFASetupChanged) {
		t.Fatalf("expected ErrMFASetupChanged, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetMFASecret_AlreadyEnabled(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	u := sampleUser()
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+mfa_secret\s*=\s*\$1.*WHERE\s+id\s*=\s*\$4\s+AND\s+mfa_enabled\s*=\s*FALSE`).
		WithArgs("enc:v1:new", `["h"]`, sqlmock.AnyArg(), u.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(u.ID).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(u.ID, u.Email, u.Name, u.PasswordHash, "user", "enc:v1:old", true, "[]", u.CreatedAt, u.UpdatedAt, false))

	err := repo.SetMFASecret(context.Background(), u.ID, "enc:v1:new", []string{"h"})
	if !errors.Is(err, authcore.ErrMFAAlreadyEnabled) {
		t.Fatalf("expected ErrMFAAlreadyEnabled, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConsumeBackupCode(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+backup_codes\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"backup_codes"}).AddRow(`["a","b","c"]`))
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+backup_codes\s*=\s*\$1.*AND\s+backup_codes\s*=\s*\$4`).
		WithArgs(`["a","c"]`, sqlmock.AnyArg(), "u-1", `["a","b","c"]`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.ConsumeBackupCode(context.Background(), "u-1", "b")
	if err != nil || !ok {
		t.Fatalf("ConsumeBackupCode = %v, %v; want true, nil", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConsumeBackupCode_Unknown(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+backup_codes`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"backup_codes"}).AddRow(`["a"]`))

	ok, err := repo.ConsumeBackupCode(context.Background(), "u-1", "z")
	if err != nil || ok {
		t.Fatalf("ConsumeBackupCode = %v, %v; want false, nil", ok, err)
	}
}

func TestConsumeBackupCode_LostRace(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	for range consumeRetries {
		mock.ExpectQuery(`SELECT\s+backup_codes`).
			WithArgs("u-1").
			WillReturnRows(sqlmock.NewRows([]string{"backup_codes"}).AddRow(`["a","b"]`))
		mock.ExpectExec(`UPDATE\s+users\s+SET\s+backup_codes`).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	_, err := repo.ConsumeBackupCode(context.Background(), "u-1", "a")
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestRebindNumbered(t *testing.T) {
	got := RebindNumbered(`UPDATE users SET name = $1 WHERE id = $12`)
	if got != `UPDATE users SET name = ?1 WHERE id = ?12` {
		t.Fatalf("RebindNumbered = %q", got)
	}
}

func TestSetDisabled(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+users\s+SET\s+disabled\s*=\s*\$1,\s*updated_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3`).
		WithArgs(true, sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+disabled`).
		WithArgs(true, sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetDisabled(context.Background(), "u-1", true); err != nil {
		t.Fatalf("SetDisabled error: %v", err)
	}
	if err := repo.SetDisabled(context.Background(), "missing", true); !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
