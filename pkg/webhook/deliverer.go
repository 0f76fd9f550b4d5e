package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/webhookcall/pkg/logger"
)

// Deliverer runs one invocation of a delivery job: a single attempt followed
// by exactly one scheduler instruction (or none, on success). It never sleeps
// and never retries inline; re-invocation is the scheduler's job.
type Deliverer struct {
	executor Executor
	backoffs *BackoffRegistry
	sink     Sink
	logger   *slog.Logger
}

// DelivererOption configures a Deliverer.
type DelivererOption func(*Deliverer)

// WithExecutor replaces the default Attempt.
func WithExecutor(e Executor) DelivererOption {
	return func(d *Deliverer) {
		if e != nil {
			d.executor = e
		}
	}
}

// WithBackoffRegistry sets the catalogue job backoff names resolve against.
func WithBackoffRegistry(r *BackoffRegistry) DelivererOption {
	return func(d *Deliverer) {
		if r != nil {
			d.backoffs = r
		}
	}
}

// WithSink sets the notification sink.
func WithSink(s Sink) DelivererOption {
	return func(d *Deliverer) {
		if s != nil {
			d.sink = s
		}
	}
}

// WithLogger sets the logger for lifecycle records.
func WithLogger(l *slog.Logger) DelivererOption {
	return func(d *Deliverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDeliverer creates a Deliverer. Without options it uses an HTTP Attempt,
// the default backoff registry and a sink that drops everything.
func NewDeliverer(opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		backoffs: DefaultBackoffRegistry(),
		sink:     NopSink{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.executor == nil {
		d.executor = NewAttempt(WithAttemptLogger(d.logger))
	}
	d.logger = d.logger.With(logger.Component("webhook.deliverer"))
	return d
}

// Execute performs the current attempt of job and tells sched what to do next.
//
// Delivery failures are not errors: they are reported through the sink and the
// returned State. The returned error is non-nil only when the job cannot be
// invoked (nil arguments, terminal state) or the scheduler rejects the
// instruction.
func (d *Deliverer) Execute(ctx context.Context, job *Job, sched Scheduler) (State, error) {
	if job == nil || sched == nil {
		return "", fmt.Errorf("%w: job and scheduler are required", ErrInvalidConfiguration)
	}
	if job.IsTerminal() {
		return job.State, fmt.Errorf("%w: state %s", ErrJobTerminated, job.State)
	}

	ctx = logger.WithCorrelationID(ctx, job.CorrelationID)

	attempt := max(sched.CurrentAttempt(job), 1)
	maxAttempts := job.maxAttempts()
	if err := job.transition(StateAttempting); err != nil {
		return job.State, err
	}

	log := d.logger.With(
		logger.Attempt(attempt),
		logger.MaxAttempts(maxAttempts),
		logger.Method(job.Request.NormalizedMethod()),
		logger.WebhookURL(job.Request.URL),
	)

	start := time.Now()
	outcome := d.executor.Execute(ctx, job.Request)
	elapsed := time.Since(start)

	if outcome.IsSuccess() {
		d.notify(ctx, log, KindSucceeded, NewRecord(job, attempt, outcome))
		if err := job.transition(StateSucceeded); err != nil {
			return job.State, err
		}
		log.LogAttrs(ctx, slog.LevelInfo, "webhook delivered",
			logger.StatusCode(outcome.StatusCode()),
			logger.Duration(elapsed),
		)
		return job.State, nil
	}

	failure := []slog.Attr{
		logger.ErrorKind(string(outcome.ErrorKind())),
		logger.StatusCode(outcome.StatusCode()),
		logger.Duration(elapsed),
		slog.String("error_message", outcome.ErrorMessage()),
	}

	if attempt < maxAttempts {
		wait := d.strategy(ctx, log, job).NextInterval(attempt)
		d.notify(ctx, log, KindFailedAttempt, NewRecord(job, attempt, outcome))
		if err := job.transition(StateAwaitingRetry); err != nil {
			return job.State, err
		}
		log.LogAttrs(ctx, slog.LevelWarn, "webhook attempt failed, retry scheduled",
			append(failure, logger.Delay(wait))...,
		)
		if err := sched.Schedule(ctx, job, wait); err != nil {
			log.LogAttrs(ctx, slog.LevelError, "failed to schedule retry", logger.Error(err))
			return job.State, fmt.Errorf("%w: %w", ErrScheduleFailed, err)
		}
		return job.State, nil
	}

	d.notify(ctx, log, KindFailedAttempt, NewRecord(job, attempt, outcome))
	d.notify(ctx, log, KindFinalFailure, NewRecord(job, attempt, outcome))
	if err := job.transition(StateExhausted); err != nil {
		return job.State, err
	}
	log.LogAttrs(ctx, slog.LevelError, "webhook delivery exhausted", failure...)
	if err := sched.Discard(ctx, job); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "failed to discard job", logger.Error(err))
		return job.State, fmt.Errorf("%w: %w", ErrDiscardFailed, err)
	}
	return job.State, nil
}

func (d *Deliverer) strategy(ctx context.Context, log *slog.Logger, job *Job) BackoffStrategy {
	strategy, err := d.backoffs.Resolve(job.Backoff)
	if err != nil {
		log.LogAttrs(ctx, slog.LevelWarn, "unknown backoff strategy, using default",
			slog.String("backoff", job.Backoff),
			logger.Error(err),
		)
		return DefaultBackoffStrategy()
	}
	return strategy
}

// notify dispatches best effort: errors and panics are logged and swallowed.
func (d *Deliverer) notify(ctx context.Context, log *slog.Logger, kind Kind, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			log.LogAttrs(ctx, slog.LevelError, "notification sink panicked",
				logger.Event(kind.String()),
				slog.Any("panic", r),
			)
		}
	}()

	if err := d.sink.Notify(ctx, kind, rec); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "notification delivery failed",
			logger.Event(kind.String()),
			logger.Error(fmt.Errorf("%w: %w", ErrNotificationDelivery, err)),
		)
	}
}
