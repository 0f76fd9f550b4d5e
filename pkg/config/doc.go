// Package config loads environment-driven configuration structs.
//
// Load parses variables into any struct tagged for github.com/caarlos0/env and
// layers optional dotenv files (github.com/joho/godotenv) underneath the real
// environment. Each package of the service declares its own Config struct next to
// the code that consumes it (webhook.Config, queue.Config, redis.Config, ...).
//
//	var cfg queue.Config
//	config.MustLoad(&cfg)
package config
