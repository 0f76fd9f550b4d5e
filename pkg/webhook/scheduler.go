package webhook

import (
	"context"
	"time"
)

// Scheduler is the queue-side contract the deliverer drives. It owns the
// attempt counter and the timing of re-invocations.
type Scheduler interface {
	// CurrentAttempt returns the 1-based number of the invocation in progress.
	CurrentAttempt(job *Job) int
	// Schedule re-invokes job after delay and increments the attempt number.
	Schedule(ctx context.Context, job *Job, delay time.Duration) error
	// Discard drops job. It must not be invoked again.
	Discard(ctx context.Context, job *Job) error
}
