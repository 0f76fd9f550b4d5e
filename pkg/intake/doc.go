// Package intake exposes the HTTP API that accepts webhook deliveries.
//
//	POST /webhooks   enqueue a delivery, 202 with its correlation and task IDs
//	GET  /healthz    liveness
//	GET  /readyz     readiness, runs the registered checks
//
// A delivery request looks like:
//
//	{
//	  "method": "POST",
//	  "url": "https://example.com/hook",
//	  "payload": {"order_id": "ord_1"},
//	  "headers": {"X-Tenant": "acme"},
//	  "timeout": "10s",
//	  "verify_ssl": true,
//	  "max_attempts": 5,
//	  "backoff": "exponential",
//	  "correlation_id": "optional, generated when empty",
//	  "tags": ["orders"],
//	  "meta": {"source": "billing"}
//	}
//
// Omitted fields take the webhook.Config defaults. The correlation ID may also
// come from the X-Correlation-ID header.
package intake
