// Package notify provides webhook.Sink implementations for delivery lifecycle
// notifications.
//
//   - LogSink writes each notification as a structured log record.
//   - RedisSink publishes JSON records on a Redis pub/sub channel per kind.
//   - MultiSink fans out to several sinks, best effort.
//   - Recorder keeps notifications in memory for tests and diagnostics.
//
// Sinks are called synchronously by webhook.Deliverer, which already logs and
// swallows their errors; they should return quickly.
package notify
