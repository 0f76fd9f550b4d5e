// Package requestid tags incoming HTTP requests with an identifier.
//
// Middleware reuses a valid X-Request-ID header or generates a UUID, stores
// it in the request context (FromContext) and echoes it back. Valid is the
// same check, exported for other caller-supplied identifiers such as
// delivery correlation IDs. LoggerExtractor plugs into logger.New so every
// record logged with a request context carries "request_id":
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r.Use(requestid.Middleware)
package requestid
