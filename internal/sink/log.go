package sink

import (
	"context"
	"log/slog"

	"github.com/roach88/rollcall/internal/notify"
)

// Log writes every message and event to a slog logger at info level.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log sink. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// SendControlMessage implements notify.Sink.
func (l *Log) SendControlMessage(ctx context.Context, msg string) error {
	l.logger.InfoContext(ctx, "control message", "message", msg)
	return nil
}

// SendStatusEvent implements notify.Sink.
func (l *Log) SendStatusEvent(ctx context.Context, ev notify.StatusEvent) error {
	l.logger.InfoContext(ctx, "status event",
		"name", ev.Name,
		"kind", ev.Kind,
		"source", ev.Source,
		"scope", ev.Scope,
		"is_satisfied", ev.IsSatisfied,
		"entities", ev.Entities,
		"session", ev.Session,
		"pass", ev.Pass,
	)
	return nil
}
