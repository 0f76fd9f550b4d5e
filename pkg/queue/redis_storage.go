package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the keys of RedisStorage.
const DefaultRedisPrefix = "queue"

// claimScript recovers expired locks and claims the earliest due task across
// the given queues in one round trip.
//
// KEYS[1]: task hash; KEYS[2]: owner hash; then pairs of (ready zset, processing zset) per queue.
// ARGV[1]: now in ms; ARGV[2]: lock deadline in ms; ARGV[3]: worker id.
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local best_id, best_score, best_ready, best_processing
for i = 3, #KEYS, 2 do
	local ready, processing = KEYS[i], KEYS[i + 1]
	local expired = redis.call('ZRANGEBYSCORE', processing, '-inf', now)
	for _, id in ipairs(expired) do
		redis.call('ZREM', processing, id)
		redis.call('HDEL', KEYS[2], id)
		redis.call('ZADD', ready, now, id)
	end
	local head = redis.call('ZRANGEBYSCORE', ready, '-inf', now, 'WITHSCORES', 'LIMIT', 0, 1)
	if #head > 0 then
		local score = tonumber(head[2])
		if best_id == nil or score < best_score then
			best_id, best_score, best_ready, best_processing = head[1], score, ready, processing
		end
	end
end
if best_id == nil then
	return false
end
redis.call('ZREM', best_ready, best_id)
local raw = redis.call('HGET', KEYS[1], best_id)
if not raw then
	return false
end
redis.call('ZADD', best_processing, ARGV[2], best_id)
redis.call('HSET', KEYS[2], best_id, ARGV[3])
return raw
`)

// ownedCheck guards the settle scripts: the task must exist, sit in the
// processing set and be owned by the calling worker.
//
// KEYS[1]: task hash; KEYS[2]: owner hash; KEYS[3]: processing zset.
// ARGV[1]: task id; ARGV[2]: worker id.
const ownedCheck = `
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
	return -2
end
if not redis.call('ZSCORE', KEYS[3], ARGV[1]) then
	return 0
end
if redis.call('HGET', KEYS[2], ARGV[1]) ~= ARGV[2] then
	return -1
end
`

// completeScript deletes an owned task.
var completeScript = redis.NewScript(ownedCheck + `
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[1], ARGV[1])
return 1
`)

// releaseScript reschedules an owned task with its attempt incremented.
//
// KEYS[4]: ready zset.
// ARGV[3]: due time in ms; ARGV[4]: due time RFC 3339; ARGV[5]: "1" to replace
// the payload; ARGV[6]: base64 payload.
var releaseScript = redis.NewScript(ownedCheck + `
local task = cjson.decode(raw)
task['attempt'] = (tonumber(task['attempt']) or 1) + 1
task['status'] = 'pending'
task['scheduled_at'] = ARGV[4]
task['locked_until'] = nil
task['locked_by'] = nil
if ARGV[5] == '1' then
	task['payload'] = ARGV[6]
end
redis.call('HSET', KEYS[1], ARGV[1], cjson.encode(task))
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
return 1
`)

// dlqScript moves an owned task into the dead letter hash.
//
// KEYS[4]: dead letter hash.
// ARGV[3]: entry id; ARGV[4]: failed at RFC 3339; ARGV[5]: reason;
// ARGV[6]: "1" to replace the payload; ARGV[7]: base64 payload.
var dlqScript = redis.NewScript(ownedCheck + `
local task = cjson.decode(raw)
local payload = task['payload']
if ARGV[6] == '1' then
	payload = ARGV[7]
end
local entry = {
	id = ARGV[3],
	task_id = task['id'],
	queue = task['queue'],
	task_name = task['task_name'],
	payload = payload,
	error = ARGV[5],
	attempt = task['attempt'],
	failed_at = ARGV[4],
	created_at = task['created_at'],
}
redis.call('HSET', KEYS[4], ARGV[3], cjson.encode(entry))
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[1], ARGV[1])
return 1
`)

// Results of the settle scripts.
const (
	settleOK            = 1
	settleNotProcessing = 0
	settleLockLost      = -1
	settleNotFound      = -2
)

// RedisStorage implements the queue repositories on Redis.
//
// Layout under the prefix:
//
//	<prefix>:tasks                  hash  task id -> task JSON
//	<prefix>:ready:<queue>          zset  task id scored by due time (ms)
//	<prefix>:processing:<queue>     zset  task id scored by lock deadline (ms)
//	<prefix>:owners                 hash  task id -> id of the worker holding the lock
//	<prefix>:dlq                    hash  entry id -> dead letter JSON
//
// Claiming and settling run as Lua scripts, so a worker whose lock expired
// cannot settle a task another worker has reclaimed.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

// RedisStorageOption configures a RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisStorageOption {
	return func(s *RedisStorage) {
		if prefix = strings.TrimSuffix(prefix, ":"); prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStorage creates a Redis backed storage.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisStorageOption) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrRepositoryNil
	}
	s := &RedisStorage{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStorage) tasksKey() string  { return s.prefix + ":tasks" }
func (s *RedisStorage) ownersKey() string { return s.prefix + ":owners" }
func (s *RedisStorage) dlqKey() string    { return s.prefix + ":dlq" }

func (s *RedisStorage) readyKey(queue string) string {
	return s.prefix + ":ready:" + queue
}

func (s *RedisStorage) processingKey(queue string) string {
	return s.prefix + ":processing:" + queue
}

// CreateTask implements EnqueuerRepository
func (s *RedisStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	stored := cloneTask(task)
	stored.Status = TaskStatusPending
	stored.LockedUntil = nil
	stored.LockedBy = nil
	if stored.Attempt < 1 {
		stored.Attempt = 1
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return errors.Join(ErrPayloadMarshal, err)
	}

	created, err := s.client.HSetNX(ctx, s.tasksKey(), task.ID.String(), data).Result()
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}

	return s.client.ZAdd(ctx, s.readyKey(stored.Queue), redis.Z{
		Score:  float64(stored.ScheduledAt.UnixMilli()),
		Member: task.ID.String(),
	}).Err()
}

// ClaimTask implements WorkerRepository
func (s *RedisStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	if len(queues) == 0 {
		return nil, ErrNoTaskToClaim
	}

	keys := make([]string, 0, 2+2*len(queues))
	keys = append(keys, s.tasksKey(), s.ownersKey())
	for _, q := range queues {
		keys = append(keys, s.readyKey(q), s.processingKey(q))
	}

	now := time.Now()
	lockUntil := now.Add(lockDuration)

	raw, err := claimScript.Run(ctx, s.client, keys, now.UnixMilli(), lockUntil.UnixMilli(), workerID.String()).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	task.Status = TaskStatusProcessing
	task.LockedUntil = &lockUntil
	task.LockedBy = &workerID
	return &task, nil
}

// CompleteTask implements WorkerRepository. Completed tasks are deleted.
func (s *RedisStorage) CompleteTask(ctx context.Context, taskID, workerID uuid.UUID) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	code, err := completeScript.Run(ctx, s.client,
		s.settleKeys(task.Queue),
		taskID.String(), workerID.String(),
	).Int64()
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return settleError(taskID, code)
}

// ReleaseTask implements WorkerRepository
func (s *RedisStorage) ReleaseTask(ctx context.Context, taskID, workerID uuid.UUID, payload []byte, delay time.Duration) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	replace, encoded := encodePayload(payload)
	due := time.Now().Add(delay)

	code, err := releaseScript.Run(ctx, s.client,
		append(s.settleKeys(task.Queue), s.readyKey(task.Queue)),
		taskID.String(), workerID.String(),
		due.UnixMilli(), due.Format(time.RFC3339Nano), replace, encoded,
	).Int64()
	if err != nil {
		return fmt.Errorf("release task: %w", err)
	}
	return settleError(taskID, code)
}

// MoveToDLQ implements WorkerRepository
func (s *RedisStorage) MoveToDLQ(ctx context.Context, taskID, workerID uuid.UUID, reason string, payload []byte) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	replace, encoded := encodePayload(payload)

	code, err := dlqScript.Run(ctx, s.client,
		append(s.settleKeys(task.Queue), s.dlqKey()),
		taskID.String(), workerID.String(),
		uuid.NewString(), time.Now().Format(time.RFC3339Nano), reason, replace, encoded,
	).Int64()
	if err != nil {
		return fmt.Errorf("move task to dead letter queue: %w", err)
	}
	return settleError(taskID, code)
}

// GetTask returns a stored task. Status reflects the sorted set holding it.
func (s *RedisStorage) GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	raw, err := s.client.HGet(ctx, s.tasksKey(), taskID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, err
	}

	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}

	task.Status = TaskStatusPending
	task.LockedUntil = nil
	task.LockedBy = nil
	score, err := s.client.ZScore(ctx, s.processingKey(task.Queue), taskID.String()).Result()
	switch {
	case err == nil:
		lockUntil := time.UnixMilli(int64(score))
		task.Status = TaskStatusProcessing
		task.LockedUntil = &lockUntil
	case !errors.Is(err, redis.Nil):
		return nil, err
	}

	if task.Status == TaskStatusProcessing {
		owner, err := s.client.HGet(ctx, s.ownersKey(), taskID.String()).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		if id, err := uuid.Parse(owner); err == nil {
			task.LockedBy = &id
		}
	}
	return &task, nil
}

// DLQ returns dead-lettered tasks, oldest failure first.
func (s *RedisStorage) DLQ(ctx context.Context) ([]TasksDlq, error) {
	values, err := s.client.HVals(ctx, s.dlqKey()).Result()
	if err != nil {
		return nil, err
	}

	out := make([]TasksDlq, 0, len(values))
	for _, v := range values {
		var entry TasksDlq
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		out = append(out, entry)
	}
	slices.SortFunc(out, func(a, b TasksDlq) int {
		return a.FailedAt.Compare(b.FailedAt)
	})
	return out, nil
}

func (s *RedisStorage) settleKeys(queue string) []string {
	return []string{s.tasksKey(), s.ownersKey(), s.processingKey(queue)}
}

// encodePayload renders a payload the way encoding/json stores []byte fields.
func encodePayload(payload []byte) (replace, encoded string) {
	if payload == nil {
		return "0", ""
	}
	return "1", base64.StdEncoding.EncodeToString(payload)
}

func settleError(taskID uuid.UUID, code int64) error {
	switch code {
	case settleOK:
		return nil
	case settleNotFound:
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	case settleNotProcessing:
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	case settleLockLost:
		return fmt.Errorf("%w: %s", ErrTaskLockLost, taskID)
	default:
		return fmt.Errorf("unexpected settle result %d for task %s", code, taskID)
	}
}
