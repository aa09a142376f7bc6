// Package memory provides an in-process authcore.UserStore for tests,
// local development and single-binary demos.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/lifeplan-navigator/authcore"
)

// UserStore keeps accounts in maps guarded by a mutex. Returned records are
// copies.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]authcore.UserRecord
	byEmail map[string]string
	now     func() time.Time
}

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]authcore.UserRecord),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

var _ authcore.UserStore = (*UserStore)(nil)

func (s *UserStore) Create(_ context.Context, u authcore.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return authcore.ErrAccountExists
	}
	if _, ok := s.byID[u.ID]; ok {
		return authcore.ErrAccountExists
	}
	u.BackupCodes = slices.Clone(u.BackupCodes)
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (authcore.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	u.BackupCodes = slices.Clone(u.BackupCodes)
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (authcore.UserRecord, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) update(id string, fn func(*authcore.UserRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return authcore.ErrUserNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	u.UpdatedAt = s.now().UTC()
	s.byID[id] = u
	return nil
}

func (s *UserStore) UpdatePassword(_ context.Context, id, hash string) error {
	return s.update(id, func(u *authcore.UserRecord) error {
		u.PasswordHash = hash
		return nil
	})
}

func (s *UserStore) UpdateName(_ context.Context, id, name string) error {
	return s.update(id, func(u *authcore.UserRecord) error {
		u.Name = name
		return nil
	})
}

func (s *UserStore) SetDisabled(_ context.Context, id string, disabled bool) error {
	return s.update(id, func(u *authcore.UserRecord) error {
		u.Disabled = disabled
		return nil
	})
}

func (s *UserStore) SetMFASecret(_ context.Context, id, secret string, backupHashes []string) error {
	return s.update(id, func(u *authcore.UserRecord) error {
		if u.MFAEnabled {
			return authcore.ErrMFAAlreadyEnabled
		}
		u.MFASecret = secret
		u.BackupCodes = slices.Clone(backupHashes)
		return nil
	})
}

func (s *UserStore) EnableMFA(_ context.Context, id, secret string) error {
	return s.update(id, func(u *authcore.UserRecord) error {
		switch {
		case u.MFASecret == "":
			return authcore.ErrMFANotConfigured
		case u.MFASecret != secret:
			return authcore.ErrMFASetupChanged
		}
		u.MFAEnabled = true
		return nil
	})
}

func (s *UserStore) ConsumeBackupCode(_ context.Context, id, hash string) (bool, error) {
	consumed := false
	err := s.update(id, func(u *authcore.UserRecord) error {
		i := slices.Index(u.BackupCodes, hash)
		if i < 0 {
			return nil
		}
		u.BackupCodes = slices.Delete(slices.Clone(u.BackupCodes), i, i+1)
		consumed = true
		return nil
	})
	return consumed, err
}

// Len reports the number of stored accounts.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
