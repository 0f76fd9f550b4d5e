package notify

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/webhookcall/pkg/logger"
	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

var _ webhook.Sink = (*LogSink)(nil)

// LogSink writes notifications to a slog.Logger. Final failures are logged at
// error level, failed attempts at warn, successes at info.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{logger: l.With(logger.Component("notify.log"))}
}

func (s *LogSink) Notify(ctx context.Context, kind webhook.Kind, rec webhook.Record) error {
	level := slog.LevelInfo
	switch kind {
	case webhook.KindFailedAttempt:
		level = slog.LevelWarn
	case webhook.KindFinalFailure:
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		logger.Event(kind.String()),
		logger.CorrelationID(rec.CorrelationID),
		logger.Method(rec.Method),
		logger.WebhookURL(rec.URL),
		logger.Attempt(rec.Attempt),
	}
	if rec.Response != nil {
		attrs = append(attrs, logger.StatusCode(rec.Response.StatusCode))
	}
	if rec.ErrorKind != "" {
		attrs = append(attrs,
			logger.ErrorKind(string(rec.ErrorKind)),
			slog.String("error_message", rec.ErrorMessage),
		)
	}
	if len(rec.Tags) > 0 {
		attrs = append(attrs, slog.Any("tags", rec.Tags))
	}

	s.logger.LogAttrs(ctx, level, "webhook notification", attrs...)
	return nil
}
