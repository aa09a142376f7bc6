package authcore

import (
	"io"
	"log/slog"

	"github.com/lifeplan-navigator/authcore/internal/audit"
)

// AuditEvent is the record delivered to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// MultiSink fans events out to several sinks.
type MultiSink = audit.MultiSink

// NewChannelSink buffers events in a channel, mostly for tests.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per event to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink logs events through logger.
func NewSlogSink(logger *slog.Logger) *audit.SlogSink {
	return audit.NewSlogSink(logger)
}

// AuditType and AuditSeverity classify events for sinks outside the engine.
type (
	AuditType     = audit.Type
	AuditSeverity = audit.Severity
)
