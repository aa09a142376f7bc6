package session

import "time"

// Session is one authenticated browser session.
type Session struct {
	ID           string         `json:"-"`
	UserID       string         `json:"userId"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	MFAEnabled   bool           `json:"mfaEnabled"`
	MFAVerified  bool           `json:"-"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"-"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	UserAgent    string         `json:"userAgent,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Attrs are the caller supplied fields of a new session.
type Attrs struct {
	UserID      string
	Email       string
	Role        string
	MFAEnabled  bool
	MFAVerified bool
	UserAgent   string
	IPAddress   string
	Metadata    map[string]any
}

// Policy bounds session lifetime.
type Policy struct {
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
	MaxConcurrent   int
}

// DefaultPolicy is 30 minutes idle, 8 hours absolute, 3 sessions per user.
func DefaultPolicy() Policy {
	return Policy{
		IdleTimeout:     30 * time.Minute,
		AbsoluteTimeout: 8 * time.Hour,
		MaxConcurrent:   3,
	}
}

// Expired reports whether the absolute lifetime has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Idle reports whether the session has been inactive for at least idle.
func (s *Session) Idle(now time.Time, idle time.Duration) bool {
	return idle > 0 && now.Sub(s.LastActivity) >= idle
}

func (s *Session) clone() *Session {
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func newSession(id string, a Attrs, p Policy, now time.Time) *Session {
	return &Session{
		ID:           id,
		UserID:       a.UserID,
		Email:        a.Email,
		Role:         a.Role,
		MFAEnabled:   a.MFAEnabled,
		MFAVerified:  a.MFAVerified,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(p.AbsoluteTimeout),
		UserAgent:    a.UserAgent,
		IPAddress:    a.IPAddress,
		Metadata:     a.Metadata,
	}
}
