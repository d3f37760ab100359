package notify

import (
	"context"
	"sync"

	"github.com/roach88/rollcall/internal/ir"
)

// Recorder keeps every notification it receives. It implements both
// Notifier and Sink. Safe for concurrent use.
type Recorder struct {
	mu            sync.Mutex
	notifications []ir.Notification
	messages      []string
	events        []StatusEvent

	// Err, when set, is returned from every call after recording.
	Err error
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n ir.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return r.Err
}

// SendControlMessage implements Sink.
func (r *Recorder) SendControlMessage(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.Err
}

// SendStatusEvent implements Sink.
func (r *Recorder) SendStatusEvent(_ context.Context, ev StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Notifications returns a copy of the recorded notifications.
func (r *Recorder) Notifications() []ir.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.Notification(nil), r.notifications...)
}

// Messages returns the recorded message strings: those of notifications
// followed by any control messages received as a sink.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notifications)+len(r.messages))
	for _, n := range r.notifications {
		out = append(out, n.Message)
	}
	return append(out, r.messages...)
}

// Events returns a copy of the recorded status events.
func (r *Recorder) Events() []StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusEvent(nil), r.events...)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = nil
	r.messages = nil
	r.events = nil
}
