package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/webhookcall/pkg/queue"
	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

// TaskName identifies webhook delivery tasks in the queue.
const TaskName = "webhook.delivery"

// Enqueuer is satisfied by *queue.Enqueuer.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// Dispatcher starts webhook deliveries by enqueueing their jobs.
type Dispatcher struct {
	enqueuer Enqueuer
}

// NewDispatcher creates a Dispatcher. It panics on a nil enqueuer.
func NewDispatcher(enqueuer Enqueuer) *Dispatcher {
	if enqueuer == nil {
		panic(ErrEnqueuerNil)
	}
	return &Dispatcher{enqueuer: enqueuer}
}

// Dispatch validates job and enqueues its first attempt. The job's queue is
// used unless opts override it. Returns the task ID.
func (d *Dispatcher) Dispatch(ctx context.Context, job *webhook.Job, opts ...queue.EnqueueOption) (uuid.UUID, error) {
	if job == nil {
		return uuid.Nil, fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	if job.IsTerminal() {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidJob, webhook.ErrJobTerminated)
	}
	if err := job.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	base := []queue.EnqueueOption{queue.WithTaskName(TaskName)}
	if job.Queue != "" {
		base = append(base, queue.WithQueue(job.Queue))
	}

	id, err := d.enqueuer.Enqueue(ctx, job, append(base, opts...)...)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: %w", ErrDispatchFailed, job.CorrelationID, err)
	}
	return id, nil
}
