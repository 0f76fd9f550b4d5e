package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements all queue repository interfaces for testing and local development
type MemoryStorage struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
	dlq   map[uuid.UUID]*TasksDlq

	// Index for efficient claims
	byStatus map[TaskStatus][]uuid.UUID

	// Lock management
	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		tasks:    make(map[uuid.UUID]*Task),
		dlq:      make(map[uuid.UUID]*TasksDlq),
		byStatus: make(map[TaskStatus][]uuid.UUID),
		done:     make(chan struct{}),
	}

	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationManager()

	return ms
}

// Close stops the background goroutines
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// CreateTask implements EnqueuerRepository
func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}

	// Clone task to prevent external modifications
	taskCopy := cloneTask(task)
	taskCopy.Status = TaskStatusPending
	if taskCopy.Attempt < 1 {
		taskCopy.Attempt = 1
	}
	ms.tasks[task.ID] = taskCopy
	ms.byStatus[TaskStatusPending] = append(ms.byStatus[TaskStatusPending], task.ID)

	return nil
}

// ClaimTask implements WorkerRepository.
// The earliest due task wins; creation time breaks ties.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Task

	for _, taskID := range ms.byStatus[TaskStatusPending] {
		task := ms.tasks[taskID]

		if !slices.Contains(queues, task.Queue) {
			continue
		}
		if task.ScheduledAt.After(now) {
			continue
		}

		if best == nil ||
			task.ScheduledAt.Before(best.ScheduledAt) ||
			(task.ScheduledAt.Equal(best.ScheduledAt) && task.CreatedAt.Before(best.CreatedAt)) {
			best = task
		}
	}

	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	ms.removeFromStatusIndex(best.ID, TaskStatusPending)
	ms.byStatus[TaskStatusProcessing] = append(ms.byStatus[TaskStatusProcessing], best.ID)

	return cloneTask(best), nil
}

// CompleteTask implements WorkerRepository. Completed tasks are dropped.
func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID, workerID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, err := ms.ownedTask(taskID, workerID); err != nil {
		return err
	}

	ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
	delete(ms.tasks, taskID)
	return nil
}

// ReleaseTask implements WorkerRepository
func (ms *MemoryStorage) ReleaseTask(_ context.Context, taskID, workerID uuid.UUID, payload []byte, delay time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.ownedTask(taskID, workerID)
	if err != nil {
		return err
	}

	if payload != nil {
		task.Payload = slices.Clone(payload)
	}
	task.Attempt++
	task.Status = TaskStatusPending
	task.ScheduledAt = time.Now().Add(delay)
	task.LockedUntil = nil
	task.LockedBy = nil

	ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
	ms.byStatus[TaskStatusPending] = append(ms.byStatus[TaskStatusPending], taskID)
	return nil
}

// MoveToDLQ implements WorkerRepository
func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID, workerID uuid.UUID, reason string, payload []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.ownedTask(taskID, workerID)
	if err != nil {
		return err
	}

	if payload != nil {
		task.Payload = slices.Clone(payload)
	}
	entry := newDLQEntry(task, reason)
	ms.dlq[entry.ID] = entry

	ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
	delete(ms.tasks, taskID)
	return nil
}

// GetTask returns a copy of a stored task.
func (ms *MemoryStorage) GetTask(_ context.Context, taskID uuid.UUID) (*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return cloneTask(task), nil
}

// DLQ returns dead-lettered tasks, oldest failure first.
func (ms *MemoryStorage) DLQ(_ context.Context) ([]TasksDlq, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]TasksDlq, 0, len(ms.dlq))
	for _, entry := range ms.dlq {
		out = append(out, *entry)
	}
	slices.SortFunc(out, func(a, b TasksDlq) int {
		return a.FailedAt.Compare(b.FailedAt)
	})
	return out, nil
}

// Len returns the number of live (pending or processing) tasks.
func (ms *MemoryStorage) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.tasks)
}

// Helper methods

// ownedTask returns a processing task locked by workerID.
func (ms *MemoryStorage) ownedTask(taskID, workerID uuid.UUID) (*Task, error) {
	task, exists := ms.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	if task.LockedBy == nil || *task.LockedBy != workerID {
		return nil, fmt.Errorf("%w: %s", ErrTaskLockLost, taskID)
	}
	return task, nil
}

func (ms *MemoryStorage) removeFromStatusIndex(taskID uuid.UUID, status TaskStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == taskID
	})
}

// lockExpirationManager recovers tasks from crashed or stuck workers. Without
// it a task locked by a dead worker would never run again.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

// expireLocks resets processing tasks whose lock passed to pending. The attempt
// number is kept, so the same attempt runs again.
func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for _, taskID := range slices.Clone(ms.byStatus[TaskStatusProcessing]) {
		task := ms.tasks[taskID]
		if task.LockedUntil != nil && task.LockedUntil.Before(now) {
			task.Status = TaskStatusPending
			task.LockedUntil = nil
			task.LockedBy = nil

			ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
			ms.byStatus[TaskStatusPending] = append(ms.byStatus[TaskStatusPending], taskID)
		}
	}
}

func cloneTask(task *Task) *Task {
	c := *task
	c.Payload = slices.Clone(task.Payload)
	if task.LockedUntil != nil {
		t := *task.LockedUntil
		c.LockedUntil = &t
	}
	if task.LockedBy != nil {
		id := *task.LockedBy
		c.LockedBy = &id
	}
	if task.Error != nil {
		e := *task.Error
		c.Error = &e
	}
	return &c
}
