package publish

import (
	"context"
	"sync"
)

// Recorder keeps every notification it receives. Tests use it to assert
// what the pipeline published.
type Recorder struct {
	mu     sync.Mutex
	got    []Notification
	signal chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{signal: make(chan struct{}, 1)}
}

func (r *Recorder) Publish(n Notification) {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// All returns a copy of everything recorded.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.got))
	copy(out, r.got)
	return out
}

// Named returns the recorded notifications called name.
func (r *Recorder) Named(name Name) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.got {
		if n.Name == name {
			out = append(out, n)
		}
	}
	return out
}

// Await blocks until cond holds for the recorded notifications or ctx
// ends.
func (r *Recorder) Await(ctx context.Context, cond func([]Notification) bool) error {
	for {
		if cond(r.All()) {
			return nil
		}
		select {
		case <-r.signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
