package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/webhookcall/pkg/logger"
)

// WorkerRepository defines the interface for worker operations
type WorkerRepository interface {
	// ClaimTask atomically claims the next due task from queues.
	// It returns ErrNoTaskToClaim when nothing is due.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// The settling methods below only act on a task currently locked by workerID.
	// They return ErrTaskNotProcessing for an unclaimed task and ErrTaskLockLost
	// when the lock expired and another worker claimed it.

	// CompleteTask removes a processed task.
	CompleteTask(ctx context.Context, taskID, workerID uuid.UUID) error

	// ReleaseTask makes a claimed task pending again after delay and increments its attempt.
	// A nil payload keeps the stored one.
	ReleaseTask(ctx context.Context, taskID, workerID uuid.UUID, payload []byte, delay time.Duration) error

	// MoveToDLQ moves a claimed task to the dead letter queue.
	// A nil payload keeps the stored one.
	MoveToDLQ(ctx context.Context, taskID, workerID uuid.UUID, reason string, payload []byte) error
}

// Worker processes tasks from the queue
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex // Protects stopping state and WaitGroup operations

	// Configuration
	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	// State management
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new task worker
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	id := uuid.New()
	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     id,
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger: options.logger.With(
			logger.Component("queue.worker"),
			logger.WorkerID(id.String()),
		),
	}, nil
}

// ID returns the worker's lock owner ID.
func (w *Worker) ID() uuid.UUID {
	return w.workerID
}

// RegisterHandler registers a single task handler
func (w *Worker) RegisterHandler(handler Handler) error {
	if handler == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers[handler.Name()] = handler
	return nil
}

// RegisterHandlers registers multiple task handlers
func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Start begins processing tasks in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}

	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.stopping.Store(false)

	go w.run(runCtx)

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker and waits for in-flight tasks.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	// Use stopMu to synchronize with run() goroutine
	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for active tasks to complete")
	w.wg.Wait()
	w.logger.Info("worker stopped")

	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// run is the main processing loop
func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.fill(ctx)
		}
	}
}

// fill claims tasks until every slot is busy or nothing is due.
func (w *Worker) fill(ctx context.Context) {
	for {
		select {
		case w.sem <- struct{}{}:
		default:
			w.logger.Debug("all worker slots busy, skipping tick")
			return
		}

		task, err := w.repo.ClaimTask(ctx, w.workerID, w.queues, w.lockTimeout)
		if err != nil || task == nil {
			<-w.sem
			if err != nil && !errors.Is(err, ErrNoTaskToClaim) && ctx.Err() == nil {
				w.logger.Error("failed to claim task", logger.Error(err))
			}
			return
		}

		// Don't add to the WaitGroup after Stop() started waiting.
		w.stopMu.Lock()
		if w.stopping.Load() {
			w.stopMu.Unlock()
			<-w.sem
			// The lock expires and another worker picks the task up.
			return
		}
		w.wg.Add(1)
		w.stopMu.Unlock()

		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()

			if err := w.processTask(task); err != nil && !errors.Is(err, ErrHandlerNotFound) {
				w.logger.Error("failed to process task",
					logger.TaskID(task.ID),
					logger.Error(err))
			}
		}()
	}
}

// processTask executes a task with its handler and settles it.
func (w *Worker) processTask(task *Task) error {
	log := w.logger.With(
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		logger.Queue(task.Queue),
		logger.Attempt(task.Attempt),
	)
	log.Debug("claimed task")

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()

	if !ok {
		return w.handleMissingHandler(log, task)
	}

	// Not tied to the worker lifecycle so shutdown lets in-flight tasks finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	start := time.Now()
	exec := newExecution(task, w.workerID, w.repo)
	err := w.safeHandle(ctx, handler, exec)
	duration := time.Since(start)

	if exec.Decided() {
		if err != nil {
			log.Warn("handler returned error after deciding task outcome",
				logger.Duration(duration),
				logger.Error(err))
		}
		return nil
	}

	if err != nil {
		return w.handleTaskFailure(ctx, log, task, err, duration)
	}
	return w.handleTaskSuccess(ctx, log, task, duration)
}

func (w *Worker) safeHandle(ctx context.Context, handler Handler, exec *Execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return handler.Handle(ctx, exec)
}

// handleMissingHandler moves the task straight to the DLQ: it would fail on every claim.
func (w *Worker) handleMissingHandler(log *slog.Logger, task *Task) error {
	log.Error("no handler registered for task type")

	reason := "no handler registered for task type: " + task.TaskName
	if err := w.repo.MoveToDLQ(context.Background(), task.ID, w.workerID, reason, nil); err != nil {
		return fmt.Errorf("%w: task %s: %w", ErrFailedToMoveToDLQ, task.ID, err)
	}
	return ErrHandlerNotFound
}

// handleTaskFailure dead-letters a task whose handler failed without deciding
// its outcome. Retries are the handler's call, made through Execution.Release.
func (w *Worker) handleTaskFailure(ctx context.Context, log *slog.Logger, task *Task, execErr error, duration time.Duration) error {
	log.Error("task failed",
		logger.Duration(duration),
		logger.Error(execErr))

	if err := w.repo.MoveToDLQ(ctx, task.ID, w.workerID, execErr.Error(), nil); err != nil {
		return fmt.Errorf("%w: task %s: %w", ErrFailedToMoveToDLQ, task.ID, err)
	}

	log.Warn("task moved to dead letter queue")
	return nil
}

// handleTaskSuccess processes successful task completion
func (w *Worker) handleTaskSuccess(ctx context.Context, log *slog.Logger, task *Task, duration time.Duration) error {
	if err := w.repo.CompleteTask(ctx, task.ID, w.workerID); err != nil {
		return fmt.Errorf("%w: complete task %s: %w", ErrFailedToUpdateTaskStatus, task.ID, err)
	}

	log.Info("task completed successfully", logger.Duration(duration))
	return nil
}
