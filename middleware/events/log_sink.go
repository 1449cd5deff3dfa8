package events

import (
	"context"
	"log/slog"

	"admission-gateway/internal/logging"
)

// LogSink escreve cada evento como uma linha WARN no logger SECURITY.
type LogSink struct {
	Logger *slog.Logger
}

func NewLogSink(base *slog.Logger) LogSink {
	return LogSink{Logger: logging.Security(base)}
}

func (s LogSink) Record(ctx context.Context, ev SecurityEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = logging.Security(nil)
	}
	ev = ev.Normalize()

	attrs := []slog.Attr{
		slog.String("event_id", ev.ID),
		slog.String("type", string(ev.Type)),
		slog.String("identity", ev.Identity),
		slog.String("method", ev.Method),
		slog.String("path", ev.Path),
	}
	if ev.Field != "" {
		attrs = append(attrs, slog.String("field", ev.Field))
	}
	if ev.Detail != "" {
		attrs = append(attrs, slog.String("detail", ev.Detail))
	}
	if ev.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", ev.RequestID))
	}
	logger.LogAttrs(ctx, slog.LevelWarn, "SECURITY_EVENT", attrs...)
	return nil
}
