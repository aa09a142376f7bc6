package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lifeplan-navigator/authcore"
	"github.com/lifeplan-navigator/authcore/authz"
)

const userColumns = `id, email, name, password_hash, role, mfa_secret, mfa_enabled, backup_codes, created_at, updated_at, disabled`

// consumeRetries bounds the compare-and-swap loop in ConsumeBackupCode.
const consumeRetries = 3

// ErrConcurrentUpdate is returned when a backup code row kept changing
// underneath ConsumeBackupCode.
var ErrConcurrentUpdate = errors.New("sqlstore: concurrent update")

// UserRepository persists accounts in the users table.
type UserRepository struct {
	db      DBTX
	dialect Dialect
	now     func() time.Time
}

var _ authcore.UserStore = (*UserRepository)(nil)

// NewUserRepository returns a repository using dialect to adapt queries.
func NewUserRepository(db DBTX, dialect Dialect) *UserRepository {
	return &UserRepository{db: db, dialect: dialect, now: time.Now}
}

func (r *UserRepository) Create(ctx context.Context, u authcore.UserRecord) error {
	codes, err := encodeCodes(u.BackupCodes)
	if err != nil {
		return err
	}

	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.ExecContext(ctx, r.dialect.q(query),
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role),
		u.MFASecret, u.MFAEnabled, codes, u.CreatedAt.UTC(), u.UpdatedAt.UTC(), u.Disabled)
	if err != nil {
		if r.dialect.unique(err) {
			return authcore.ErrAccountExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, r.dialect.q(query), id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, r.dialect.q(query), email))
}

func (r *UserRepository) scanOne(row *sql.Row) (authcore.UserRecord, error) {
	var (
		u     authcore.UserRecord
		role  string
		codes string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role,
		&u.MFASecret, &u.MFAEnabled, &codes, &u.CreatedAt, &u.UpdatedAt, &u.Disabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.UserRecord{}, authcore.ErrUserNotFound
		}
		return authcore.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	u.Role = authz.Role(role)
	if u.BackupCodes, err = decodeCodes(codes); err != nil {
		return authcore.UserRecord{}, err
	}
	return u, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, query, hash, r.now().UTC(), id)
}

func (r *UserRepository) UpdateName(ctx context.Context, id, name string) error {
	query := `UPDATE users SET name = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, query, name, r.now().UTC(), id)
}

func (r *UserRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	query := `UPDATE users SET disabled = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, query, disabled, r.now().UTC(), id)
}

func (r *UserRepository) SetMFASecret(ctx context.Context, id, secret string, backupHashes []string) error {
	codes, err := encodeCodes(backupHashes)
	if err != nil {
		return err
	}
	query := `UPDATE users SET mfa_secret = $1, backup_codes = $2, updated_at = $3 WHERE id = $4 AND mfa_enabled = FALSE`
	err = r.execOne(ctx, query, secret, codes, r.now().UTC(), id)
	if !errors.Is(err, authcore.ErrUserNotFound) {
		return err
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return getErr
	}
	return authcore.ErrMFAAlreadyEnabled
}

// EnableMFA flips mfa_enabled only while the stored secret is the one the
// caller verified against.
func (r *UserRepository) EnableMFA(ctx context.Context, id, secret string) error {
	query := `UPDATE users SET mfa_enabled = TRUE, updated_at = $1 WHERE id = $2 AND mfa_secret = $3 AND mfa_secret <> '' AND mfa_enabled = FALSE`
	err := r.execOne(ctx, query, r.now().UTC(), id, secret)
	if !errors.Is(err, authcore.ErrUserNotFound) {
		return err
	}
	u, getErr := r.GetByID(ctx, id)
	switch {
	case getErr != nil:
		return getErr
	case u.MFASecret == "":
		return authcore.ErrMFANotConfigured
	case u.MFASecret != secret:
		return authcore.ErrMFASetupChanged
	}
	// Already enabled by a concurrent verify of the same secret.
	return nil
}

// ConsumeBackupCode removes hash with a compare-and-swap on the stored
// list, so two concurrent uses of one code cannot both succeed.
func (r *UserRepository) ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error) {
	selectQuery := r.dialect.q(`SELECT backup_codes FROM users WHERE id = $1`)
	updateQuery := r.dialect.q(`UPDATE users SET backup_codes = $1, updated_at = $2 WHERE id = $3 AND backup_codes = $4`)

	for range consumeRetries {
		var current string
		if err := r.db.QueryRowContext(ctx, selectQuery, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, authcore.ErrUserNotFound
			}
			return false, fmt.Errorf("db error: %w", err)
		}

		codes, err := decodeCodes(current)
		if err != nil {
			return false, err
		}
		i := slices.Index(codes, hash)
		if i < 0 {
			return false, nil
		}
		next, err := encodeCodes(slices.Delete(codes, i, i+1))
		if err != nil {
			return false, err
		}

		res, err := r.db.ExecContext(ctx, updateQuery, next, r.now().UTC(), id, current)
		if err != nil {
			return false, fmt.Errorf("db error: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			return true, nil
		}
	}
	return false, ErrConcurrentUpdate
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.dialect.q(query), args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func encodeCodes(codes []string) (string, error) {
	if codes == nil {
		codes = []string{}
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return "", fmt.Errorf("encode backup codes: %w", err)
	}
	return string(b), nil
}

func decodeCodes(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var codes []string
	if err := json.Unmarshal([]byte(s), &codes); err != nil {
		return nil, fmt.Errorf("decode backup codes: %w", err)
	}
	return codes, nil
}
