// Command webhookd accepts webhook deliveries over HTTP and delivers them
// with retries from a task queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/webhookcall/pkg/config"
	"github.com/dmitrymomot/webhookcall/pkg/delivery"
	"github.com/dmitrymomot/webhookcall/pkg/httpserver"
	"github.com/dmitrymomot/webhookcall/pkg/intake"
	"github.com/dmitrymomot/webhookcall/pkg/logger"
	"github.com/dmitrymomot/webhookcall/pkg/notify"
	"github.com/dmitrymomot/webhookcall/pkg/queue"
	"github.com/dmitrymomot/webhookcall/pkg/redis"
	"github.com/dmitrymomot/webhookcall/pkg/requestid"
	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

func main() {
	var cfg appConfig
	config.MustLoad(&cfg, config.WithEnvFiles(".env"))

	log := logger.New(append(
		logger.FromConfig(cfg.Logger),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)...)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("webhookd stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

type storage interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	var (
		client *goredis.Client
		checks []intake.Option
	)
	if cfg.needsRedis() {
		c, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer c.Close()
		client = c
		checks = append(checks, intake.WithHealthCheck("redis", redis.Healthcheck(client)))
	}

	store, closeStore, err := openStorage(cfg, client)
	if err != nil {
		return err
	}
	defer closeStore()

	backoffs, err := cfg.Webhook.LoadBackoffs()
	if err != nil {
		return err
	}

	deliverer, err := newDeliverer(cfg, backoffs, client, log)
	if err != nil {
		return err
	}

	enqueuer, err := queue.NewEnqueuer(store, queue.WithDefaultQueue(cfg.Webhook.Queue))
	if err != nil {
		return err
	}

	worker, err := queue.NewWorker(store, append(
		cfg.Queue.WorkerOptions(cfg.Webhook.Queue),
		queue.WithWorkerLogger(log),
	)...)
	if err != nil {
		return err
	}
	if err := worker.RegisterHandler(delivery.NewHandler(deliverer)); err != nil {
		return err
	}

	api := intake.New(delivery.NewDispatcher(enqueuer), append([]intake.Option{
		intake.WithDefaults(cfg.Webhook),
		intake.WithBackoffRegistry(backoffs),
		intake.WithMaxTimeout(cfg.Queue.LockTimeout),
		intake.WithLogger(log),
	}, checks...)...)

	server := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	log.InfoContext(ctx, "webhookd starting",
		slog.String("storage", cfg.Queue.Storage),
		logger.Queue(cfg.Webhook.Queue),
		slog.Any("backoffs", backoffs.Names()),
		slog.Bool("signing", cfg.Webhook.SigningSecret != ""),
		slog.Bool("notify_redis", cfg.NotifyRedis),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx, api.Router())
	})
	g.Go(func() error {
		if err := worker.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return stopWithin(cfg.Queue.ShutdownTimeout, worker.Stop)
	})

	return g.Wait()
}

func openStorage(cfg appConfig, client *goredis.Client) (storage, func(), error) {
	switch cfg.Queue.Storage {
	case queue.StorageMemory, "":
		s := queue.NewMemoryStorage()
		return s, func() { _ = s.Close() }, nil
	case queue.StorageRedis:
		if client == nil {
			return nil, nil, fmt.Errorf("%w: redis storage needs a client", queue.ErrRepositoryNil)
		}
		s, err := queue.NewRedisStorage(client, queue.WithRedisPrefix(cfg.Redis.KeyPrefix))
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue storage %q", cfg.Queue.Storage)
	}
}

func newDeliverer(cfg appConfig, backoffs *webhook.BackoffRegistry, client *goredis.Client, log *slog.Logger) (*webhook.Deliverer, error) {
	attempt, err := cfg.Webhook.NewAttempt(webhook.WithAttemptLogger(log))
	if err != nil {
		return nil, err
	}

	sinks := []webhook.Sink{notify.NewLogSink(log)}
	if cfg.NotifyRedis && client != nil {
		sinks = append(sinks, notify.NewRedisSink(client, notify.WithChannelPrefix(cfg.channelPrefix())))
	}

	return webhook.NewDeliverer(
		webhook.WithExecutor(attempt),
		webhook.WithBackoffRegistry(backoffs),
		webhook.WithSink(notify.NewMultiSink(sinks...)),
		webhook.WithLogger(log),
	), nil
}

var errStopTimeout = errors.New("worker did not stop in time")

// stopWithin runs stop and gives up waiting after timeout. Tasks still
// running are reclaimed by another worker once their lock expires.
func stopWithin(timeout time.Duration, stop func() error) error {
	if timeout <= 0 {
		return stop()
	}
	done := make(chan error, 1)
	go func() { done <- stop() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return errStopTimeout
	}
}
