package notify

import (
	"context"
	"slices"
	"sync"

	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

var _ webhook.Sink = (*Recorder)(nil)

// Notification is one recorded Notify call.
type Notification struct {
	Kind   webhook.Kind
	Record webhook.Record
}

// Recorder is an in-memory sink. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, kind webhook.Kind, rec webhook.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Kind: kind, Record: rec})
	return nil
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []webhook.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]webhook.Kind, len(r.items))
	for i, n := range r.items {
		kinds[i] = n.Kind
	}
	return kinds
}

// Count returns how many notifications of kind were recorded.
func (r *Recorder) Count(kind webhook.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
