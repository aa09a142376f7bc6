package authcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/lifeplan-navigator/authcore/internal/audit"
)

func (e *Engine) emitAudit(ctx context.Context, ev audit.Event) {
	if e == nil || e.audit == nil {
		return
	}
	if ev.IP == "" {
		ev.IP = clientIPFromContext(ctx)
	}
	if ev.UserAgent == "" {
		ev.UserAgent = userAgentFromContext(ctx)
	}
	e.audit.Emit(ctx, ev)
}

func (e *Engine) auditAuth(ctx context.Context, code, actorID, sessionID string, success bool, metadata map[string]any) {
	sev := audit.SeverityInfo
	if !success {
		sev = audit.SeverityWarning
	}
	e.emitAudit(ctx, audit.Event{
		Type:      audit.TypeAuth,
		Code:      code,
		Severity:  sev,
		ActorID:   actorID,
		SessionID: sessionHandle(sessionID),
		Success:   success,
		Metadata:  metadata,
	})
}

func (e *Engine) auditSecurity(ctx context.Context, code, actorID string, metadata map[string]any) {
	e.emitAudit(ctx, audit.Event{
		Type:     audit.TypeSec,
		Code:     code,
		Severity: audit.SeverityWarning,
		ActorID:  actorID,
		Success:  false,
		Metadata: metadata,
	})
}

// sessionHandle is a non-reversible reference to a session id, safe to
// log, audit and return to clients.
func sessionHandle(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}
