// Package events fans trading events out to other services.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind names an event type.
type Kind string

const (
	KindFill    Kind = "fill"
	KindExit    Kind = "exit"
	KindSummary Kind = "summary"
)

// Event is one published message. Payload is marshalled as JSON.
type Event struct {
	Kind    Kind        `json:"kind"`
	Asset   string      `json:"asset,omitempty"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// Publisher sends events. Publishing is best effort; callers log failures
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish stores e.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ Publisher = Noop{}
	_ Publisher = (*Recorder)(nil)
)
