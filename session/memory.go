package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lifeplan-navigator/authcore/token"
)

// MemoryStore is a process-local Store used in tests and single-process
// development runs. It follows the same expiry and eviction rules as
// RedisStore.
type MemoryStore struct {
	mu       sync.Mutex
	policy   Policy
	now      func() time.Time
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(policy Policy) *MemoryStore {
	return &MemoryStore{
		policy:   policy,
		now:      time.Now,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		m.now = now
	}
	return m
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, attrs Attrs) (*Session, []string, error) {
	if attrs.UserID == "" {
		return nil, nil, ErrInvalidAttrs
	}
	id, err := token.Generate()
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	sess := newSession(id, attrs, m.policy, now)
	m.sessions[id] = sess.clone()
	ids := m.byUser[attrs.UserID]
	if ids == nil {
		ids = make(map[string]struct{})
		m.byUser[attrs.UserID] = ids
	}
	ids[id] = struct{}{}

	live := make([]*Session, 0, len(ids))
	for sid := range ids {
		s, ok := m.sessions[sid]
		if !ok || m.deadLocked(s, now) {
			m.removeLocked(sid)
			continue
		}
		live = append(live, s)
	}

	var evicted []string
	if max := m.policy.MaxConcurrent; max > 0 && len(live) > max {
		sort.Slice(live, func(i, j int) bool {
			if live[i].CreatedAt.Equal(live[j].CreatedAt) {
				return live[i].ID < live[j].ID
			}
			return live[i].CreatedAt.Before(live[j].CreatedAt)
		})
		excess := len(live) - max
		for _, s := range live {
			if excess == 0 {
				break
			}
			if s.ID == id {
				continue
			}
			m.removeLocked(s.ID)
			evicted = append(evicted, s.ID)
			excess--
		}
	}

	return sess, evicted, nil
}

func (m *MemoryStore) deadLocked(s *Session, now time.Time) bool {
	return s.Expired(now) || s.Idle(now, m.policy.IdleTimeout)
}

func (m *MemoryStore) removeLocked(id string) bool {
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	delete(m.sessions, id)
	if ids := m.byUser[s.UserID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.byUser, s.UserID)
		}
	}
	return true
}

// Get implements Store. Idle sessions are reported missing, matching the
// key expiry RedisStore applies.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.deadLocked(s, m.now()) {
		m.removeLocked(id)
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

// Touch implements Store.
func (m *MemoryStore) Touch(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	now := m.now()
	if m.deadLocked(s, now) {
		m.removeLocked(id)
		return false, nil
	}
	s.LastActivity = now
	return true, nil
}

// SetMFAVerified implements Store.
func (m *MemoryStore) SetMFAVerified(_ context.Context, id string, verified bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	s.MFAVerified = verified
	return true, nil
}

// Destroy implements Store.
func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	m.removeLocked(id)
	m.mu.Unlock()
	return nil
}

// DestroyAllForUser implements Store.
func (m *MemoryStore) DestroyAllForUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id := range m.byUser[userID] {
		if m.removeLocked(id) {
			n++
		}
	}
	delete(m.byUser, userID)
	return n, nil
}

// ListForUser implements Store.
func (m *MemoryStore) ListForUser(_ context.Context, userID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []*Session
	for id := range m.byUser[userID] {
		s, ok := m.sessions[id]
		if !ok || m.deadLocked(s, now) {
			m.removeLocked(id)
			continue
		}
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(context.Context) (time.Duration, error) {
	return 0, nil
}
