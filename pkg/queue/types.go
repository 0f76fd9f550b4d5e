package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
)

// Task represents a task in the queue.
// Attempt is the 1-based number of the invocation the next claim will run;
// it only grows when a handler releases the task.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	TaskName    string     `json:"task_name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status"`
	Attempt     int        `json:"attempt"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TasksDlq represents a task in the dead letter queue.
// Stores discarded tasks for manual inspection and recovery.
type TasksDlq struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Queue     string    `json:"queue"`
	TaskName  string    `json:"task_name"`
	Payload   []byte    `json:"payload,omitempty"`
	Error     string    `json:"error"`
	Attempt   int       `json:"attempt"`
	FailedAt  time.Time `json:"failed_at"`
	CreatedAt time.Time `json:"created_at"`
}

func newDLQEntry(task *Task, reason string) *TasksDlq {
	now := time.Now()
	return &TasksDlq{
		ID:        uuid.New(),
		TaskID:    task.ID,
		Queue:     task.Queue,
		TaskName:  task.TaskName,
		Payload:   task.Payload,
		Error:     reason,
		Attempt:   task.Attempt,
		FailedAt:  now,
		CreatedAt: task.CreatedAt,
	}
}
