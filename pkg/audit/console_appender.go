package audit

import (
	"context"
	"log/slog"
)

// ConsoleAppender - вывод аудита через slog
type ConsoleAppender struct {
	logger *slog.Logger
	level  Level
}

// NewConsoleAppender - создать console appender поверх logger
func NewConsoleAppender(logger *slog.Logger, level Level) *ConsoleAppender {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleAppender{logger: logger, level: level}
}

// Append - записать entry; отклоненные запросы уходят в Warn, сбои в Error
func (ca *ConsoleAppender) Append(ctx context.Context, entry *Entry) error {
	e := entry.FilterByLevel(ca.level)

	attrs := []slog.Attr{
		slog.String("id", e.ID),
		slog.String("dataset", e.Dataset),
		slog.String("source", e.Source),
		slog.String("target", e.Target),
	}
	if e.Fingerprint != "" {
		attrs = append(attrs, slog.String("fingerprint", e.Fingerprint))
	}
	if e.Rows > 0 {
		attrs = append(attrs, slog.Int64("rows", e.Rows))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", e.Duration))
	}
	if e.Query != "" {
		attrs = append(attrs, slog.String("query", e.Query))
	}
	if e.ErrorMessage != "" {
		attrs = append(attrs, slog.String("kind", string(e.ErrorKind)), slog.String("error", e.ErrorMessage))
	}

	level := slog.LevelInfo
	switch e.Status {
	case StatusRejected:
		level = slog.LevelWarn
	case StatusFailure:
		level = slog.LevelError
	}

	ca.logger.LogAttrs(ctx, level, string(e.Operation)+" "+string(e.Status), attrs...)
	return nil
}

// Close - noop
func (ca *ConsoleAppender) Close() error {
	return nil
}
