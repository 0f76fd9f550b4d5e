package webhook

import (
	"context"
	"maps"
	"slices"
)

// Kind identifies a lifecycle notification.
type Kind string

const (
	KindSucceeded     Kind = "succeeded"
	KindFailedAttempt Kind = "failed_attempt"
	KindFinalFailure  Kind = "final_failure"
)

func (k Kind) String() string {
	return string(k)
}

// Record is the snapshot delivered with a notification. It is detached from
// the job: sinks may keep or mutate it freely.
type Record struct {
	CorrelationID string            `json:"correlation_id"`
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Payload       map[string]any    `json:"payload,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Meta          map[string]any    `json:"meta,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Attempt       int               `json:"attempt"`
	Response      *Response         `json:"response,omitempty"`
	ErrorKind     ErrorKind         `json:"error_kind,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
}

// NewRecord snapshots job and outcome for the given attempt.
func NewRecord(job *Job, attempt int, outcome Outcome) Record {
	return Record{
		CorrelationID: job.CorrelationID,
		Method:        job.Request.Method,
		URL:           job.Request.URL,
		Payload:       cloneMap(job.Request.Payload),
		Headers:       maps.Clone(job.Request.Headers),
		Meta:          cloneMap(job.Meta),
		Tags:          slices.Clone(job.Tags),
		Attempt:       attempt,
		Response:      outcome.Response().clone(),
		ErrorKind:     outcome.ErrorKind(),
		ErrorMessage:  outcome.ErrorMessage(),
	}
}

// Sink receives lifecycle notifications. Implementations should be quick;
// the deliverer calls them synchronously and ignores their errors.
type Sink interface {
	Notify(ctx context.Context, kind Kind, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, kind Kind, rec Record) error

func (f SinkFunc) Notify(ctx context.Context, kind Kind, rec Record) error {
	return f(ctx, kind, rec)
}

// NopSink drops every notification.
type NopSink struct{}

func (NopSink) Notify(context.Context, Kind, Record) error { return nil }

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	default:
		return v
	}
}
