package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxAttempts applies when a job does not set MaxAttempts.
const DefaultMaxAttempts = 3

// Job is the persistent state of one logical webhook delivery. The scheduler
// stores it between invocations and must hand back an identical copy, so every
// field is JSON-serializable and the backoff policy is referenced by name.
type Job struct {
	CorrelationID string         `json:"correlation_id"`
	Request       Request        `json:"request"`
	MaxAttempts   int            `json:"max_attempts"`
	Backoff       string         `json:"backoff,omitempty"`
	Queue         string         `json:"queue,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
	State         State          `json:"state"`
}

// JobOption configures a Job built by NewJob.
type JobOption func(*Job)

// WithMaxAttempts sets the total number of attempts, including the first one.
func WithMaxAttempts(n int) JobOption {
	return func(j *Job) {
		j.MaxAttempts = n
	}
}

// WithBackoff names the strategy resolved through a BackoffRegistry.
func WithBackoff(name string) JobOption {
	return func(j *Job) {
		j.Backoff = strings.TrimSpace(name)
	}
}

// WithCorrelationID sets the tracing token. One is generated when empty.
func WithCorrelationID(id string) JobOption {
	return func(j *Job) {
		j.CorrelationID = strings.TrimSpace(id)
	}
}

// WithTags adds informational labels. Duplicates and blanks are dropped.
func WithTags(tags ...string) JobOption {
	return func(j *Job) {
		j.Tags = append(j.Tags, tags...)
	}
}

// WithMeta attaches opaque metadata that is copied into every notification.
func WithMeta(meta map[string]any) JobOption {
	return func(j *Job) {
		if len(meta) == 0 {
			return
		}
		if j.Meta == nil {
			j.Meta = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			j.Meta[k] = v
		}
	}
}

// WithQueue sets the queue name passed through to the scheduler.
func WithQueue(name string) JobOption {
	return func(j *Job) {
		j.Queue = strings.TrimSpace(name)
	}
}

// NewJob validates req and builds a pending job.
func NewJob(req Request, opts ...JobOption) (*Job, error) {
	j := &Job{
		Request:     req,
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoffName,
		State:       StatePending,
	}
	for _, opt := range opts {
		opt(j)
	}

	if j.Request.Timeout == 0 {
		j.Request.Timeout = DefaultTimeout
	}
	if j.CorrelationID == "" {
		j.CorrelationID = uuid.NewString()
	}
	j.Tags = normalizeTags(j.Tags)

	if err := j.Validate(); err != nil {
		return nil, err
	}
	return j, nil
}

// DecodeJob restores a job stored by a scheduler. Numbers inside the payload
// and metadata are kept as json.Number, so they serialize back byte for byte.
func DecodeJob(data []byte) (*Job, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var job Job
	if err := dec.Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Validate checks the invariants a scheduler relies on.
func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidConfiguration)
	}
	var errs []error
	if err := j.Request.Validate(); err != nil {
		errs = append(errs, err)
	}
	if j.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidAttempts, j.MaxAttempts))
	}
	if j.CorrelationID == "" {
		errs = append(errs, fmt.Errorf("%w: correlation id is required", ErrInvalidConfiguration))
	}
	return errors.Join(errs...)
}

// IsTerminal reports whether the delivery has succeeded or exhausted its attempts.
func (j *Job) IsTerminal() bool {
	return j.State.IsTerminal()
}

func (j *Job) transition(to State) error {
	if !j.State.CanTransitionTo(to) {
		return transitionError(j.State, to)
	}
	j.State = to
	return nil
}

func (j *Job) maxAttempts() int {
	if j.MaxAttempts < 1 {
		return 1
	}
	return j.MaxAttempts
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
