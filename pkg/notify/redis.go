package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

var _ webhook.Sink = (*RedisSink)(nil)

// DefaultChannelPrefix is prepended to the kind to form the channel name.
const DefaultChannelPrefix = "webhooks"

// ErrPublish is returned when a notification cannot be published.
var ErrPublish = errors.New("failed to publish webhook notification")

// Publisher is the subset of redis.UniversalClient used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Message is the JSON document published by RedisSink.
type Message struct {
	Kind      webhook.Kind   `json:"kind"`
	Record    webhook.Record `json:"record"`
	Timestamp time.Time      `json:"timestamp"`
}

// RedisSink publishes notifications on "<prefix>:<kind>" channels, e.g.
// "webhooks:final_failure".
type RedisSink struct {
	client Publisher
	prefix string
	now    func() time.Time
}

// RedisSinkOption configures a RedisSink.
type RedisSinkOption func(*RedisSink)

// WithChannelPrefix overrides DefaultChannelPrefix.
func WithChannelPrefix(prefix string) RedisSinkOption {
	return func(s *RedisSink) {
		if prefix = strings.TrimSuffix(prefix, ":"); prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisSink creates a sink publishing through client.
func NewRedisSink(client Publisher, opts ...RedisSinkOption) *RedisSink {
	s := &RedisSink{client: client, prefix: DefaultChannelPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channel returns the channel notifications of kind are published on.
func (s *RedisSink) Channel(kind webhook.Kind) string {
	return s.prefix + ":" + kind.String()
}

func (s *RedisSink) Notify(ctx context.Context, kind webhook.Kind, rec webhook.Record) error {
	data, err := json.Marshal(Message{Kind: kind, Record: rec, Timestamp: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPublish, err)
	}
	if err := s.client.Publish(ctx, s.Channel(kind), data).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}
