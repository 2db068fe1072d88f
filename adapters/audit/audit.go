// Package audit provides the zerolog-backed audit sink. The audit trail is
// consumed as a write-only stream; persistence is an external concern.
package audit

import (
	"context"

	"github.com/artpar/crmgate/ports"
	"github.com/rs/zerolog"
)

// Logger writes audit events as structured log lines.
type Logger struct {
	logger zerolog.Logger
}

// New creates an audit sink writing to the given logger.
func New(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("stream", "audit").Logger()}
}

// Record emits the event. Never blocks and never fails the audited
// operation.
func (l *Logger) Record(ctx context.Context, ev ports.AuditEvent) {
	l.logger.Info().
		Str("actor", ev.Actor).
		Str("action", ev.Action).
		Str("module", ev.Module).
		Str("entity_id", ev.EntityID).
		Str("detail", ev.Detail).
		Time("at", ev.At).
		Msg("audit")
}

// Ensure interface compliance.
var _ ports.AuditSink = (*Logger)(nil)
