package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrymomot/webhookcall/pkg/queue"
	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

// NewHandler returns the queue handler for TaskName tasks.
// Undecodable payloads and scheduler failures are returned to the worker,
// which moves the task to the dead letter queue.
func NewHandler(deliverer *webhook.Deliverer) queue.Handler {
	if deliverer == nil {
		panic(ErrDelivererNil)
	}
	return queue.NewHandler(TaskName, func(ctx context.Context, exec *queue.Execution) error {
		job, err := webhook.DecodeJob(exec.Payload())
		if err != nil {
			return fmt.Errorf("%w: task %s: %w", ErrDecodeJob, exec.TaskID(), err)
		}

		_, err = deliverer.Execute(ctx, job, &executionScheduler{exec: exec})
		return err
	})
}

// executionScheduler drives a queue.Execution as a webhook.Scheduler.
type executionScheduler struct {
	exec *queue.Execution
}

func (s *executionScheduler) CurrentAttempt(*webhook.Job) int {
	return s.exec.Attempt()
}

func (s *executionScheduler) Schedule(ctx context.Context, job *webhook.Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeJob, err)
	}
	return s.exec.Release(ctx, delay, payload)
}

// Discard dead-letters the task with the exhausted job as its payload.
func (s *executionScheduler) Discard(ctx context.Context, job *webhook.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeJob, err)
	}
	reason := fmt.Sprintf("webhook delivery %s exhausted after %d attempts", job.CorrelationID, s.exec.Attempt())
	return s.exec.Discard(ctx, reason, payload)
}
