package queue

import "time"

// Storage backends accepted by Config.Storage.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config holds the configuration for the task queue
type Config struct {
	Storage            string        `env:"QUEUE_STORAGE" envDefault:"memory"`
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
}

// WorkerOptions translates the config into worker options for queues.
func (c Config) WorkerOptions(queues ...string) []WorkerOption {
	opts := []WorkerOption{
		WithPullInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithMaxConcurrentTasks(c.MaxConcurrentTasks),
	}
	if len(queues) > 0 {
		opts = append(opts, WithQueues(queues...))
	}
	return opts
}
