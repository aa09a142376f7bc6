package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lifeplan-navigator/authcore"
)

// AuditSink writes audit events to the audit_logs table. It runs on the
// dispatcher goroutine; write failures are logged and the event is lost.
type AuditSink struct {
	db      DBTX
	dialect Dialect
	logger  *slog.Logger
	timeout time.Duration
}

var _ authcore.AuditSink = (*AuditSink)(nil)

// NewAuditSink returns a sink. A nil logger uses slog.Default.
func NewAuditSink(db DBTX, dialect Dialect, logger *slog.Logger) *AuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditSink{db: db, dialect: dialect, logger: logger, timeout: 5 * time.Second}
}

func (s *AuditSink) Emit(ctx context.Context, ev authcore.AuditEvent) {
	if err := s.Insert(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "audit write failed",
			"event", "audit_write_failed",
			"code", ev.Code,
			"error", err,
		)
	}
}

// Insert writes one event.
func (s *AuditSink) Insert(ctx context.Context, ev authcore.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var metadata any
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = string(b)
	}

	query := `INSERT INTO audit_logs
		(id, occurred_at, event_type, code, severity, actor_id, session_id, ip, user_agent, target_type, target_id, success, error, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.db.ExecContext(ctx, s.dialect.q(query),
		ev.ID, ev.Timestamp.UTC(), string(ev.Type), ev.Code, string(ev.Severity),
		nullable(ev.ActorID), nullable(ev.SessionID), nullable(ev.IP), nullable(ev.UserAgent),
		nullable(ev.TargetType), nullable(ev.TargetID), ev.Success, nullable(ev.Error), metadata)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. A non-empty actorID
// filters to that actor.
func (s *AuditSink) Recent(ctx context.Context, actorID string, limit int) ([]authcore.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, occurred_at, event_type, code, severity, actor_id, session_id, ip, target_type, target_id, success, metadata
		FROM audit_logs`
	args := []any{}
	if actorID != "" {
		query += ` WHERE actor_id = $1 ORDER BY occurred_at DESC LIMIT $2`
		args = append(args, actorID, limit)
	} else {
		query += ` ORDER BY occurred_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []authcore.AuditEvent
	for rows.Next() {
		var (
			ev                                       authcore.AuditEvent
			typ, sev                                 string
			actor, session, ip, targetType, targetID sql.NullString
			metadata                                 sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &typ, &ev.Code, &sev,
			&actor, &session, &ip, &targetType, &targetID, &ev.Success, &metadata); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ev.Type = authcore.AuditType(typ)
		ev.Severity = authcore.AuditSeverity(sev)
		ev.ActorID, ev.SessionID, ev.IP = actor.String, session.String, ip.String
		ev.TargetType, ev.TargetID = targetType.String, targetID.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
