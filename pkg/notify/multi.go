package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

// ErrSinkPanic wraps a panic raised by one of the sinks of a MultiSink.
var ErrSinkPanic = errors.New("notification sink panicked")

var _ webhook.Sink = (*MultiSink)(nil)

// MultiSink combines multiple sinks.
type MultiSink struct {
	sinks []webhook.Sink
}

// NewMultiSink creates a fan-out sink. Nil sinks are skipped.
func NewMultiSink(sinks ...webhook.Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Notify sends the notification to every sink even when some fail or panic,
// and returns the joined errors. Logging them is left to the caller.
func (m *MultiSink) Notify(ctx context.Context, kind webhook.Kind, rec webhook.Record) error {
	var errs []error
	for i, s := range m.sinks {
		if err := notifyOne(ctx, s, kind, rec); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func notifyOne(ctx context.Context, s webhook.Sink, kind webhook.Kind, rec webhook.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSinkPanic, r)
		}
	}()
	return s.Notify(ctx, kind, rec)
}
