package authcore

import (
	"context"
	"time"

	"github.com/lifeplan-navigator/authcore/authz"
)

// UserRecord is the persisted account. Name and MFASecret hold fieldcrypt
// envelopes when an encryption key is configured; BackupCodes holds hashes
// only.
type UserRecord struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         authz.Role
	MFASecret    string
	MFAEnabled   bool
	BackupCodes  []string
	// Disabled accounts cannot log in.
	Disabled  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserStore persists accounts. Implementations return ErrUserNotFound for
// unknown ids or emails and ErrAccountExists for a duplicate email on
// Create. Emails are stored lower-cased by the engine.
type UserStore interface {
	Create(ctx context.Context, user UserRecord) error
	GetByID(ctx context.Context, id string) (UserRecord, error)
	GetByEmail(ctx context.Context, email string) (UserRecord, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	// UpdateName stores an already sealed display name.
	UpdateName(ctx context.Context, id, name string) error
	// SetMFASecret stores a pending secret and its backup code hashes. It
	// returns ErrMFAAlreadyEnabled instead of replacing a confirmed secret.
	SetMFASecret(ctx context.Context, id, secret string, backupHashes []string) error
	// EnableMFA confirms the pending secret only if it still equals secret.
	// A replaced secret gives ErrMFASetupChanged; enabling the same secret
	// twice is not an error.
	EnableMFA(ctx context.Context, id, secret string) error
	// ConsumeBackupCode atomically removes hash from the user's codes and
	// reports whether it was present.
	ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
}

// User is the public view of an account returned to handlers.
type User struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Role       authz.Role `json:"role"`
	MFAEnabled bool       `json:"mfaEnabled"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// RegisterRequest is the registration form.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User      User
	SessionID string
	// Cookie is the value for the session cookie: the session id, or a
	// signed assertion of it when session tokens are enabled.
	Cookie      string
	ExpiresAt   time.Time
	MFARequired bool
	Evicted     int
}

// MFASetup is shown to the user exactly once.
type MFASetup struct {
	Secret      string   `json:"secret"`
	URL         string   `json:"otpauthUrl"`
	BackupCodes []string `json:"backupCodes"`
}

// MFAAction tells VerifyMFA which transition the caller expects.
type MFAAction string

const (
	MFAActionAny   MFAAction = ""
	MFAActionSetup MFAAction = "setup"
	MFAActionLogin MFAAction = "login"
)

// SessionInfo describes one of the caller's sessions without exposing its
// id. Handle is stable for the lifetime of the session.
type SessionInfo struct {
	Handle       string    `json:"handle"`
	Current      bool      `json:"current"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UserAgent    string    `json:"userAgent,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
}
