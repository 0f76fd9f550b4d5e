// Package redis provides helpers for connecting to a Redis server used by the
// queue storage and the notification publisher.
//
// The package wraps the go-redis client and adds:
//
//   - Connect, which pings the server with retries driven by cenkalti/backoff.
//   - Healthcheck, suitable for the intake API's /healthz endpoint.
//
// Configuration is described by the Config struct whose fields are populated
// from REDIS_* environment variables via pkg/config.
//
// # Usage
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    // handle error, probably terminate the application
//	}
//	defer client.Close()
//
//	checker := redis.Healthcheck(client)
//	if err := checker(ctx); err != nil {
//	    // redis is not healthy
//	}
//
// # Errors
//
// The package defines sentinel errors (e.g. ErrRedisNotReady) that wrap the
// underlying go-redis errors using errors.Join.
package redis
