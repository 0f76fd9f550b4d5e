// Package logger builds *slog.Logger instances for the webhook delivery service.
//
// New applies functional options (format, level, static attributes, environment
// presets) and wraps the chosen slog handler with LogHandlerDecorator, which runs
// ContextExtractor callbacks on every record. A correlation-id extractor is always
// installed, so any context passed through WithCorrelationID tags its log lines
// with "correlation_id".
//
// Attribute helpers (Attempt, WebhookURL, ErrorKind, TaskID, ...) keep key names
// consistent between the delivery core, the queue and the daemon.
//
//	log := logger.New(logger.WithDevelopment("webhookd"))
//	ctx := logger.WithCorrelationID(ctx, job.CorrelationID)
//	log.InfoContext(ctx, "delivered", logger.Attempt(2), logger.StatusCode(200))
package logger
