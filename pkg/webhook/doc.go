// Package webhook delivers a single outbound webhook reliably: one HTTP call
// per attempt, retries driven by a named backoff strategy, and lifecycle
// notifications for succeeded, failed and exhausted deliveries.
//
// The package owns the decision logic only. Queueing, timing of retries and
// persistence of the job between attempts belong to a Scheduler supplied by
// the caller; notifications go to a Sink.
//
// # Delivery lifecycle
//
// A Job moves through the following states:
//
//	pending ──► attempting ──► succeeded
//	                 │
//	                 ├──► awaiting_retry ──► attempting ...
//	                 │
//	                 └──► exhausted
//
// Each call to Deliverer.Execute performs exactly one attempt and issues at
// most one scheduler instruction:
//
//   - success: a KindSucceeded notification, no instruction;
//   - failure before the last attempt: a KindFailedAttempt notification and
//     Scheduler.Schedule with the strategy's interval for that attempt;
//   - failure on the last attempt: KindFailedAttempt, then KindFinalFailure,
//     then Scheduler.Discard.
//
// # Basic Usage
//
//	job, err := webhook.NewJob(webhook.Request{
//	    Method:  "POST",
//	    URL:     "https://api.example.com/hooks",
//	    Payload: map[string]any{"event": "user.created", "id": "123"},
//	}, webhook.WithMaxAttempts(5), webhook.WithBackoff("exponential"))
//	if err != nil {
//	    return err
//	}
//
//	deliverer := webhook.NewDeliverer(
//	    webhook.WithSink(sink),
//	    webhook.WithLogger(log),
//	)
//	state, err := deliverer.Execute(ctx, job, scheduler)
//
// # Attempts
//
// Attempt executes one request. GET and HEAD send the payload as query
// parameters, every other verb sends it as a JSON body. Any status outside
// 200-299 is an HttpError failure that keeps the response; transport problems
// are classified as TimeoutError, ConnectionError, DNSError, TLSError or the
// generic TransportError. An optional Signer (HMACSigner is provided) may add
// headers right before the call.
//
// # Backoff
//
// Jobs reference strategies by name so they survive serialization. The
// default registry offers exponential, linear and fixed; more can be loaded
// from YAML with LoadBackoffRegistry. Strategies are deterministic.
//
// # Error Handling
//
// Delivery failures are never returned as errors. Execute returns an error
// only for ErrJobTerminated, ErrInvalidConfiguration, ErrInvalidTransition or
// a scheduler failure wrapped in ErrScheduleFailed or ErrDiscardFailed.
package webhook
