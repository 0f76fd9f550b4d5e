package main

import (
	"fmt"

	"github.com/dmitrymomot/webhookcall/pkg/httpserver"
	"github.com/dmitrymomot/webhookcall/pkg/logger"
	"github.com/dmitrymomot/webhookcall/pkg/queue"
	"github.com/dmitrymomot/webhookcall/pkg/redis"
	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

type appConfig struct {
	Logger  logger.Config
	HTTP    httpserver.Config
	Webhook webhook.Config
	Queue   queue.Config
	Redis   redis.Config

	// NotifyRedis publishes lifecycle notifications on Redis pub/sub.
	NotifyRedis bool `env:"NOTIFY_REDIS" envDefault:"false"`
	// NotifyChannelPrefix defaults to "<REDIS_KEY_PREFIX>:events".
	NotifyChannelPrefix string `env:"NOTIFY_CHANNEL_PREFIX"`
}

func (c appConfig) needsRedis() bool {
	return c.Queue.Storage == queue.StorageRedis || c.NotifyRedis
}

func (c appConfig) channelPrefix() string {
	if c.NotifyChannelPrefix != "" {
		return c.NotifyChannelPrefix
	}
	return c.Redis.KeyPrefix + ":events"
}

// validate rejects settings under which every delivery would misbehave.
func (c appConfig) validate() error {
	if c.Queue.LockTimeout > 0 && c.Webhook.Timeout >= c.Queue.LockTimeout {
		return fmt.Errorf("WEBHOOK_TIMEOUT (%s) must be shorter than QUEUE_LOCK_TIMEOUT (%s)",
			c.Webhook.Timeout, c.Queue.LockTimeout)
	}
	return nil
}
