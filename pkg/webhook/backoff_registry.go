package webhook

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Built-in strategy names.
const (
	BackoffExponential = "exponential"
	BackoffLinear      = "linear"
	BackoffFixed       = "fixed"

	// DefaultBackoffName is used by jobs that do not name a strategy.
	DefaultBackoffName = BackoffExponential
)

// BackoffRegistry resolves strategy names to strategies. Jobs carry only the
// name, so any process that rehydrates a job resolves the same policy.
// Safe for concurrent use.
type BackoffRegistry struct {
	mu         sync.RWMutex
	strategies map[string]BackoffStrategy
}

// NewBackoffRegistry creates an empty registry.
func NewBackoffRegistry() *BackoffRegistry {
	return &BackoffRegistry{strategies: make(map[string]BackoffStrategy)}
}

// DefaultBackoffRegistry contains the exponential, linear and fixed strategies.
func DefaultBackoffRegistry() *BackoffRegistry {
	r := NewBackoffRegistry()
	r.strategies[BackoffExponential] = DefaultBackoffStrategy()
	r.strategies[BackoffLinear] = LinearBackoff{Interval: 30 * time.Second, MaxInterval: time.Hour}
	r.strategies[BackoffFixed] = FixedBackoff{Interval: time.Minute}
	return r
}

// Register adds or replaces a named strategy.
func (r *BackoffRegistry) Register(name string, strategy BackoffStrategy) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: backoff name is required", ErrInvalidConfiguration)
	}
	if strategy == nil {
		return fmt.Errorf("%w: backoff %q has no strategy", ErrInvalidConfiguration, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = strategy
	return nil
}

// Resolve returns the strategy registered under name. An empty name resolves
// DefaultBackoffName.
func (r *BackoffRegistry) Resolve(name string) (BackoffStrategy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultBackoffName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	strategy, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackoff, name)
	}
	return strategy, nil
}

// Has reports whether name resolves.
func (r *BackoffRegistry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Names lists registered strategy names in sorted order.
func (r *BackoffRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BackoffDefinition is the YAML form of a named strategy.
type BackoffDefinition struct {
	Name            string        `yaml:"name"`
	Type            string        `yaml:"type"`
	Interval        time.Duration `yaml:"interval"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// Strategy builds the strategy described by the definition.
func (d BackoffDefinition) Strategy() (BackoffStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(d.Type)) {
	case BackoffExponential:
		return ExponentialBackoff{
			InitialInterval: d.InitialInterval,
			MaxInterval:     d.MaxInterval,
			Multiplier:      d.Multiplier,
		}, nil
	case BackoffLinear:
		return LinearBackoff{Interval: d.Interval, MaxInterval: d.MaxInterval}, nil
	case BackoffFixed:
		return FixedBackoff{Interval: d.Interval}, nil
	default:
		return nil, fmt.Errorf("%w: backoff %q has unsupported type %q", ErrInvalidConfiguration, d.Name, d.Type)
	}
}

type backoffFile struct {
	Strategies []BackoffDefinition `yaml:"strategies"`
}

// LoadBackoffRegistry reads named strategies from YAML on top of the defaults:
//
//	strategies:
//	  - name: partner-api
//	    type: exponential
//	    initial_interval: 10s
//	    max_interval: 30m
//	    multiplier: 3
//	  - name: polite
//	    type: fixed
//	    interval: 5m
func LoadBackoffRegistry(r io.Reader) (*BackoffRegistry, error) {
	var file backoffFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode backoff definitions: %w", ErrInvalidConfiguration, err)
	}

	registry := DefaultBackoffRegistry()
	for _, def := range file.Strategies {
		strategy, err := def.Strategy()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(def.Name, strategy); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// LoadBackoffFile is LoadBackoffRegistry for a file path. An empty path returns
// the default registry.
func LoadBackoffFile(path string) (*BackoffRegistry, error) {
	if path == "" {
		return DefaultBackoffRegistry(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	defer func() { _ = f.Close() }()

	return LoadBackoffRegistry(f)
}
