// Package notify delivers membership notifications to sinks.
//
// Delivery is best effort. The membership context commits its cache before
// it hands a notification over, and a failed delivery is logged and
// counted but never retried or rolled back.
package notify

import (
	"context"
	"errors"

	"github.com/roach88/rollcall/internal/ir"
)

// ErrClosed is returned when notifying through a closed dispatcher.
var ErrClosed = errors.New("notify: dispatcher closed")

// StatusEvent is the structured form of a notification, pushed to status
// consumers such as a browser overlay.
type StatusEvent struct {
	Name        string        `json:"name"`
	Kind        ir.CheckKind  `json:"kind"`
	Source      string        `json:"source,omitempty"`
	Feed        ir.Feed       `json:"feed,omitempty"`
	Scope       ir.Scope      `json:"scope"`
	IsSatisfied bool          `json:"is_satisfied"`
	Entities    []ir.EntityID `json:"entities"`
	Session     string        `json:"session,omitempty"`
	Pass        int64         `json:"pass"`
}

// StatusEventFor converts n. The event name is the control message.
func StatusEventFor(n ir.Notification) StatusEvent {
	entities := n.Entities
	if entities == nil {
		entities = []ir.EntityID{}
	}
	return StatusEvent{
		Name:        n.Message,
		Kind:        n.Kind,
		Source:      n.Source,
		Feed:        n.Feed,
		Scope:       n.Scope,
		IsSatisfied: n.IsSatisfied(),
		Entities:    entities,
		Session:     n.Session,
		Pass:        n.Pass,
	}
}

// Sink is the outbound control surface.
type Sink interface {
	// SendControlMessage delivers the message string, e.g. "muted-enter".
	SendControlMessage(ctx context.Context, msg string) error

	// SendStatusEvent delivers the structured event.
	SendStatusEvent(ctx context.Context, ev StatusEvent) error
}

// Notifier accepts notifications from the membership context.
type Notifier interface {
	Notify(ctx context.Context, n ir.Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n ir.Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n ir.Notification) error {
	return f(ctx, n)
}

// Deliver sends n to s as a control message and a status event. Both are
// attempted; their errors are joined.
func Deliver(ctx context.Context, s Sink, n ir.Notification) error {
	return errors.Join(
		s.SendControlMessage(ctx, n.Message),
		s.SendStatusEvent(ctx, StatusEventFor(n)),
	)
}

// Direct delivers synchronously on the caller's goroutine.
type Direct struct {
	Sink Sink
}

// Notify implements Notifier.
func (d Direct) Notify(ctx context.Context, n ir.Notification) error {
	return Deliver(ctx, d.Sink, n)
}

// Discard drops every notification.
var Discard Notifier = NotifierFunc(func(context.Context, ir.Notification) error { return nil })

// CanonicalMap returns ev as a map for ir.MarshalCanonical.
func (ev StatusEvent) CanonicalMap() map[string]any {
	m := map[string]any{
		"name":         ev.Name,
		"kind":         ev.Kind,
		"scope":        ev.Scope,
		"is_satisfied": ev.IsSatisfied,
		"entities":     ev.Entities,
		"pass":         ev.Pass,
	}
	if ev.Entities == nil {
		m["entities"] = []ir.EntityID{}
	}
	if ev.Source != "" {
		m["source"] = ev.Source
	}
	if ev.Feed != ir.FeedRoom {
		m["feed"] = ev.Feed
	}
	if ev.Session != "" {
		m["session"] = ev.Session
	}
	return m
}
