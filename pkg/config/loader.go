package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when present; its absence is not an error.
const DefaultEnvFile = ".env"

// Option customizes a single Load call.
type Option func(*options)

type options struct {
	prefix      string
	files       []string
	environment map[string]string
}

// WithPrefix scopes every env tag of the struct under prefix, e.g. "WORKER_".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithEnvFiles reads the given dotenv files instead of DefaultEnvFile.
// Unlike the default file, an explicitly listed file must exist.
func WithEnvFiles(files ...string) Option {
	return func(o *options) {
		o.files = append(o.files, files...)
	}
}

// WithEnvironment replaces the process environment as the variable source.
// Intended for tests and embedded use.
func WithEnvironment(vars map[string]string) Option {
	return func(o *options) {
		if vars != nil {
			o.environment = vars
		}
	}
}

// Load parses environment variables into v according to its env struct tags.
//
// Variables come from the process environment (or WithEnvironment) layered over
// dotenv files: a value already present in the environment always wins, which
// matches godotenv.Load semantics without mutating the process.
//
//	var cfg webhook.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	vars, err := o.resolve()
	if err != nil {
		return err
	}

	if err := env.ParseWithOptions(v, env.Options{
		Prefix:      o.prefix,
		Environment: vars,
	}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
// Use it for configuration the process cannot start without.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

func (o *options) resolve() (map[string]string, error) {
	vars := make(map[string]string)

	files := o.files
	explicit := len(files) > 0
	if !explicit {
		files = []string{DefaultEnvFile}
	}

	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, errors.Join(ErrEnvFile, fmt.Errorf("%s: %w", file, err))
		}
		for k, val := range values {
			if _, ok := vars[k]; !ok {
				vars[k] = val
			}
		}
	}

	source := o.environment
	if source == nil {
		source = env.ToMap(os.Environ())
	}
	for k, val := range source {
		vars[k] = val
	}

	return vars, nil
}
