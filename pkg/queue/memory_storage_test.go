package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/webhookcall/pkg/queue"
)

func newTask(q string, scheduledAt time.Time) *queue.Task {
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       q,
		TaskName:    "test",
		Payload:     []byte(`{}`),
		Status:      queue.TaskStatusPending,
		Attempt:     1,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}
}

func newMemoryStorage(t *testing.T) *queue.MemoryStorage {
	t.Helper()
	s := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStorage_ClaimOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newMemoryStorage(t)
	now := time.Now()

	later := newTask("a", now.Add(-time.Second))
	earlier := newTask("a", now.Add(-time.Minute))
	future := newTask("a", now.Add(time.Hour))
	otherQueue := newTask("b", now.Add(-time.Hour))

	for _, task := range []*queue.Task{later, earlier, future, otherQueue} {
		require.NoError(t, s.CreateTask(ctx, task))
	}
	require.Error(t, s.CreateTask(ctx, earlier), "duplicate IDs are rejected")

	worker := uuid.New()

	claimed, err := s.ClaimTask(ctx, worker, []string{"a"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, claimed.ID)
	assert.Equal(t, queue.TaskStatusProcessing, claimed.Status)
	require.NotNil(t, claimed.LockedBy)
	assert.Equal(t, worker, *claimed.LockedBy)

	claimed, err = s.ClaimTask(ctx, worker, []string{"a"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, later.ID, claimed.ID)

	_, err = s.ClaimTask(ctx, worker, []string{"a"}, time.Minute)
	require.ErrorIs(t, err, queue.ErrNoTaskToClaim, "future tasks are not due")
}

func TestMemoryStorage_Complete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newMemoryStorage(t)
	task := newTask("a", time.Now())
	require.NoError(t, s.CreateTask(ctx, task))

	worker := uuid.New()
	require.ErrorIs(t, s.CompleteTask(ctx, task.ID, worker), queue.ErrTaskNotProcessing)

	_, err := s.ClaimTask(ctx, worker, []string{"a"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.CompleteTask(ctx, task.ID, worker))

	_, err = s.GetTask(ctx, task.ID)
	require.ErrorIs(t, err, queue.ErrTaskNotFound)
	assert.Zero(t, s.Len())
}

func TestMemoryStorage_Release(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newMemoryStorage(t)
	task := newTask("a", time.Now())
	require.NoError(t, s.CreateTask(ctx, task))

	worker := uuid.New()
	_, err := s.ClaimTask(ctx, worker, []string{"a"}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.ReleaseTask(ctx, task.ID, worker, []byte(`{"v":2}`), time.Hour))

	stored, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempt)
	assert.Equal(t, queue.TaskStatusPending, stored.Status)
	assert.Equal(t, `{"v":2}`, string(stored.Payload))
	assert.Nil(t, stored.LockedBy)
	assert.True(t, stored.ScheduledAt.After(time.Now().Add(59*time.Minute)))

	_, err = s.ClaimTask(ctx, uuid.New(), []string{"a"}, time.Minute)
	require.ErrorIs(t, err, queue.ErrNoTaskToClaim, "released task waits for its delay")

	require.ErrorIs(t, s.ReleaseTask(ctx, task.ID, worker, nil, 0), queue.ErrTaskNotProcessing)
}

func TestMemoryStorage_ReleaseKeepsPayloadWhenNil(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newMemoryStorage(t)
	task := newTask("a", time.Now())
	require.NoError(t, s.CreateTask(ctx, task))

	worker := uuid.New()
	_, err := s.ClaimTask(ctx, worker, []string{"a"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseTask(ctx, task.ID, worker, nil, 0))

	claimed, err := s.ClaimTask(ctx, uuid.New(), []string{"a"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(claimed.Payload))
	assert.Equal(t, 2, claimed.Attempt)
}

func TestMemoryStorage_MoveToDLQ(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newMemoryStorage(t)
	task := newTask("a", time.Now())
	require.NoError(t, s.CreateTask(ctx, task))

	worker := uuid.New()
	require.ErrorIs(t, s.MoveToDLQ(ctx, task.ID, worker, "unclaimed", nil), queue.ErrTaskNotProcessing)

	_, err := s.ClaimTask(ctx, worker, []string{"a"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.MoveToDLQ(ctx, task.ID, worker, "exhausted", []byte(`{"final":true}`)))
	require.ErrorIs(t, s.MoveToDLQ(ctx, task.ID, worker, "again", nil), queue.ErrTaskNotFound)

	dlq, err := s.DLQ(ctx)
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, task.ID, dlq[0].TaskID)
	assert.Equal(t, "exhausted", dlq[0].Error)
	assert.Equal(t, 1, dlq[0].Attempt)
	assert.JSONEq(t, `{"final":true}`, string(dlq[0].Payload))
	assert.Zero(t, s.Len())
}

func TestMemoryStorage_MoveToDLQKeepsPayloadWhenNil(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newMemoryStorage(t)
	task := newTask("a", time.Now())
	require.NoError(t, s.CreateTask(ctx, task))

	worker := uuid.New()
	_, err := s.ClaimTask(ctx, worker, []string{"a"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.MoveToDLQ(ctx, task.ID, worker, "no handler", nil))

	dlq, err := s.DLQ(ctx)
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, `{}`, string(dlq[0].Payload))
}

func TestMemoryStorage_StaleWorkerCannotSettle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newMemoryStorage(t)
	task := newTask("a", time.Now())
	require.NoError(t, s.CreateTask(ctx, task))

	stale := uuid.New()
	_, err := s.ClaimTask(ctx, stale, []string{"a"}, 10*time.Millisecond)
	require.NoError(t, err)

	current := uuid.New()
	require.Eventually(t, func() bool {
		_, err = s.ClaimTask(ctx, current, []string{"a"}, time.Minute)
		return err == nil
	}, 3*time.Second, 50*time.Millisecond)

	require.ErrorIs(t, s.ReleaseTask(ctx, task.ID, stale, []byte(`{"stale":true}`), 0), queue.ErrTaskLockLost)
	require.ErrorIs(t, s.CompleteTask(ctx, task.ID, stale), queue.ErrTaskLockLost)
	require.ErrorIs(t, s.MoveToDLQ(ctx, task.ID, stale, "stale", nil), queue.ErrTaskLockLost)

	stored, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusProcessing, stored.Status)
	assert.Equal(t, 1, stored.Attempt)
	assert.Equal(t, `{}`, string(stored.Payload))
	require.NotNil(t, stored.LockedBy)
	assert.Equal(t, current, *stored.LockedBy)

	require.NoError(t, s.CompleteTask(ctx, task.ID, current))
}

func TestMemoryStorage_LockExpiration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newMemoryStorage(t)
	task := newTask("a", time.Now())
	require.NoError(t, s.CreateTask(ctx, task))

	_, err := s.ClaimTask(ctx, uuid.New(), []string{"a"}, 10*time.Millisecond)
	require.NoError(t, err)

	var reclaimed *queue.Task
	require.Eventually(t, func() bool {
		reclaimed, err = s.ClaimTask(ctx, uuid.New(), []string{"a"}, time.Minute)
		return err == nil
	}, 3*time.Second, 50*time.Millisecond)

	assert.Equal(t, task.ID, reclaimed.ID)
	assert.Equal(t, 1, reclaimed.Attempt, "an expired lock re-runs the same attempt")
}
