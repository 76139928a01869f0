package testutil

import (
	"context"
	"sync"

	"github.com/killallgit/annotation-api/internal/events"
)

// EventRecorder is an in-memory events.Publisher
type EventRecorder struct {
	mu     sync.Mutex
	Events []events.Event
	Err    error
}

func (r *EventRecorder) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, event)
	return nil
}

func (r *EventRecorder) Close() error { return nil }

// OfType returns the recorded events of one type
func (r *EventRecorder) OfType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
