package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type (
	// Handler processes claimed tasks whose TaskName equals Name.
	Handler interface {
		Name() string
		Handle(ctx context.Context, exec *Execution) error
	}

	HandlerFunc            func(ctx context.Context, exec *Execution) error
	TaskHandlerFunc[T any] func(ctx context.Context, payload T) error
)

// NewHandler registers fn under an explicit task name.
func NewHandler(name string, fn HandlerFunc) Handler {
	return &namedHandler{name: name, handler: fn}
}

// NewTaskHandler decodes the payload into T. The task name is T's qualified type name,
// matching what Enqueue derives when no WithTaskName option is given.
func NewTaskHandler[T any](handler TaskHandlerFunc[T]) Handler {
	var payload T
	return &typedHandler[T]{
		name:    qualifiedStructName(payload),
		handler: handler,
	}
}

type namedHandler struct {
	name    string
	handler HandlerFunc
}

func (h *namedHandler) Name() string {
	return h.name
}

func (h *namedHandler) Handle(ctx context.Context, exec *Execution) error {
	return h.handler(ctx, exec)
}

type typedHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *typedHandler[T]) Name() string {
	return h.name
}

func (h *typedHandler[T]) Handle(ctx context.Context, exec *Execution) error {
	var t T
	if err := json.Unmarshal(exec.Payload(), &t); err != nil {
		return err
	}
	return h.handler(ctx, t)
}

// releaser is the part of WorkerRepository an Execution needs.
type releaser interface {
	ReleaseTask(ctx context.Context, taskID, workerID uuid.UUID, payload []byte, delay time.Duration) error
	MoveToDLQ(ctx context.Context, taskID, workerID uuid.UUID, reason string, payload []byte) error
}

// Execution is a claimed task handed to a Handler. The handler may decide the
// task's fate itself with Release or Discard; otherwise the worker completes it
// on success and dead-letters it on error.
type Execution struct {
	task     *Task
	workerID uuid.UUID
	repo     releaser

	mu      sync.Mutex
	decided bool
}

func newExecution(task *Task, workerID uuid.UUID, repo releaser) *Execution {
	return &Execution{task: task, workerID: workerID, repo: repo}
}

// TaskID returns the ID of the claimed task.
func (e *Execution) TaskID() uuid.UUID { return e.task.ID }

// Queue returns the queue the task was claimed from.
func (e *Execution) Queue() string { return e.task.Queue }

// TaskName returns the handler name the task was enqueued for.
func (e *Execution) TaskName() string { return e.task.TaskName }

// Attempt returns the 1-based number of this invocation.
func (e *Execution) Attempt() int { return max(e.task.Attempt, 1) }

// Payload returns the stored payload.
func (e *Execution) Payload() json.RawMessage { return e.task.Payload }

// Release puts the task back in its queue to run again after delay, with the
// attempt number incremented. A nil payload keeps the current one.
func (e *Execution) Release(ctx context.Context, delay time.Duration, payload []byte) error {
	if err := e.decide(); err != nil {
		return err
	}
	if err := e.repo.ReleaseTask(ctx, e.task.ID, e.workerID, payload, max(delay, 0)); err != nil {
		e.undecide()
		return fmt.Errorf("%w: release task %s: %w", ErrFailedToUpdateTaskStatus, e.task.ID, err)
	}
	return nil
}

// Discard moves the task to the dead letter queue with reason.
// A nil payload keeps the current one.
func (e *Execution) Discard(ctx context.Context, reason string, payload []byte) error {
	if err := e.decide(); err != nil {
		return err
	}
	if err := e.repo.MoveToDLQ(ctx, e.task.ID, e.workerID, reason, payload); err != nil {
		e.undecide()
		return fmt.Errorf("%w: task %s: %w", ErrFailedToMoveToDLQ, e.task.ID, err)
	}
	return nil
}

// Decided reports whether Release or Discard succeeded.
func (e *Execution) Decided() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decided
}

func (e *Execution) decide() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.decided {
		return fmt.Errorf("%w: task %s", ErrTaskDecided, e.task.ID)
	}
	e.decided = true
	return nil
}

func (e *Execution) undecide() {
	e.mu.Lock()
	e.decided = false
	e.mu.Unlock()
}
