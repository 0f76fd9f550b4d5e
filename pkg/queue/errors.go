package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrPayloadMarshal is returned when payload marshaling fails
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")

	// ErrTaskCreate is returned when task creation in storage fails
	ErrTaskCreate = errors.New("failed to create task in storage")

	// ErrHandlerNotFound is returned when no handler is registered for a task
	ErrHandlerNotFound = errors.New("no handler registered for task type")

	// ErrNoHandlers is returned when worker has no handlers registered
	ErrNoHandlers = errors.New("no task handlers registered")

	// ErrNoTaskToClaim is returned by storages when nothing is due. Workers treat it as idle.
	ErrNoTaskToClaim = errors.New("no task to claim")

	// ErrTaskNotFound is returned when a task ID is unknown to the storage
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotProcessing is returned when a task is completed, released or
	// discarded without being claimed
	ErrTaskNotProcessing = errors.New("task is not in processing state")

	// ErrTaskLockLost is returned when a worker settles a task whose lock expired
	// and was taken by another worker
	ErrTaskLockLost = errors.New("task lock held by another worker")

	// ErrTaskDecided is returned when a handler releases or discards a task twice
	ErrTaskDecided = errors.New("task outcome already decided")

	// ErrWorkerStarted is returned when Start is called on a running worker
	ErrWorkerStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when Stop is called on an idle worker
	ErrWorkerNotStarted = errors.New("worker not started")

	// ErrFailedToUpdateTaskStatus is returned when task status update fails
	ErrFailedToUpdateTaskStatus = errors.New("failed to update task status")

	// ErrFailedToMoveToDLQ is returned when moving task to DLQ fails
	ErrFailedToMoveToDLQ = errors.New("failed to move task to dead letter queue")
)
