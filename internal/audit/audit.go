package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Type groups audit codes by area.
type Type string

const (
	TypeAuth   Type = "AUTH"
	TypeData   Type = "DATA"
	TypeAdmin  Type = "ADMIN"
	TypeSec    Type = "SEC"
	TypeSystem Type = "SYS"
)

// Severity ranks an event for alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Codes emitted by the engine and the request gate.
const (
	CodeLoginSuccess     = "AUTH_LOGIN_SUCCESS"
	CodeLoginFailure     = "AUTH_LOGIN_FAILURE"
	CodeLogout           = "AUTH_LOGOUT"
	CodePasswordChange   = "AUTH_PASSWORD_CHANGE"
	CodeMFAEnabled       = "AUTH_MFA_ENABLED"
	CodeMFAVerified      = "AUTH_MFA_VERIFIED"
	CodeBackupCodeUsed   = "AUTH_BACKUP_CODE_USED"
	CodeSessionExpired   = "AUTH_SESSION_EXPIRED"
	CodeAccountLocked    = "AUTH_ACCOUNT_LOCKED"
	CodeUserCreate       = "ADMIN_USER_CREATE"
	CodeAccountDisable   = "ADMIN_ACCOUNT_DISABLE"
	CodeAccountEnable    = "ADMIN_ACCOUNT_ENABLE"
	CodeCSRFViolation    = "SEC_CSRF_VIOLATION"
	CodeRateLimited      = "SEC_RATE_LIMIT_EXCEEDED"
	CodePermissionDenied = "SEC_PERMISSION_DENIED"
	CodeSessionEvicted   = "SEC_SESSION_EVICTED"
	CodeProfileView      = "DATA_USER_PROFILE_VIEW"
	CodeProfileUpdate    = "DATA_USER_PROFILE_UPDATE"
)

// Event is the audit record handed to sinks.
type Event struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       Type           `json:"type"`
	Code       string         `json:"code"`
	Severity   Severity       `json:"severity"`
	ActorID    string         `json:"actor_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	TargetType string         `json:"target_type,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// SlogSink logs each event as one structured record. Warning and above map
// to slog.LevelWarn, errors and critical events to slog.LevelError.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	level := slog.LevelInfo
	switch event.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError, SeverityCritical:
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("audit_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.String("code", event.Code),
		slog.Bool("success", event.Success),
	}
	if event.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", event.ActorID))
	}
	if event.TargetType != "" {
		attrs = append(attrs, slog.String("target_type", event.TargetType), slog.String("target_id", event.TargetID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip", event.IP))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	s.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
