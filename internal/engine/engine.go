package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/membership"
	"github.com/roach88/rollcall/internal/metric"
	"github.com/roach88/rollcall/internal/queue"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypePresence carries room transitions.
	EventTypePresence EventType = iota + 1
	// EventTypeRelationship signals a friend or block change.
	EventTypeRelationship
	// EventTypeAudio signals a mute or volume change.
	EventTypeAudio
	// EventTypeRoles signals a role grant or revocation.
	EventTypeRoles
	// EventTypeReevaluate requests a manual re-check.
	EventTypeReevaluate
	// EventTypeSettings publishes new settings.
	EventTypeSettings
	// EventTypeQuery asks for a cache snapshot.
	EventTypeQuery
	// EventTypeStream signals a change of the local participant's stream
	// or its viewers.
	EventTypeStream
	// EventTypeSelfAudio signals a change of the local participant's own
	// mute or deafen state.
	EventTypeSelfAudio
	// EventTypeStage signals that a room became or stopped being a stage.
	EventTypeStage
)

var eventTypeNames = map[EventType]string{
	EventTypePresence:     "presence",
	EventTypeRelationship: "relationship",
	EventTypeAudio:        "audio",
	EventTypeRoles:        "roles",
	EventTypeReevaluate:   "reevaluate",
	EventTypeSettings:     "settings",
	EventTypeQuery:        "query",
	EventTypeStream:       "stream",
	EventTypeSelfAudio:    "self-audio",
	EventTypeStage:        "stage",
}

// String returns the event type name.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is one unit of work for the loop.
type Event struct {
	Type EventType

	// Presence is set for EventTypePresence.
	Presence []ir.PresenceEvent

	// Kind narrows EventTypeReevaluate; empty means every kind.
	Kind ir.CheckKind

	// Settings is set for EventTypeSettings.
	Settings *ir.Settings

	// Reply receives the snapshot for EventTypeQuery. Must be buffered.
	Reply chan<- membership.State

	// Done, when set, receives the notifications of the pass. Must be
	// buffered.
	Done chan<- []ir.Notification

	seq int64
}

// Engine is the single-writer loop over a membership host.
//
// Thread-safety model:
//   - Enqueue() and the typed helpers: safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	host    *membership.Host
	queue   *queue.Queue[Event]
	clock   *membership.Clock
	logger  *slog.Logger
	metrics *metric.Metrics
	onPass  func(Event, []ir.Notification)
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records queue depth.
func WithMetrics(m *metric.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithPassObserver is called on the Run goroutine after every handled
// event with the notifications it produced.
func WithPassObserver(fn func(Event, []ir.Notification)) EngineOption {
	return func(e *Engine) {
		e.onPass = fn
	}
}

// New creates an engine driving host.
func New(host *membership.Host, opts ...EngineOption) *Engine {
	e := &Engine{
		host:   host,
		queue:  queue.New[Event](),
		clock:  membership.NewClockAt(0),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits an event for processing by the Run loop.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	ev.seq = e.clock.Next()
	if !e.queue.Push(ev) {
		return false
	}
	e.metrics.SetQueueDepth("engine", e.queue.Len())
	return true
}

// QueueLen returns the number of pending events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// PresenceChanged enqueues room transitions.
func (e *Engine) PresenceChanged(events ...ir.PresenceEvent) bool {
	return e.Enqueue(Event{Type: EventTypePresence, Presence: events})
}

// RelationshipChanged enqueues a relationship re-check.
func (e *Engine) RelationshipChanged() bool {
	return e.Enqueue(Event{Type: EventTypeRelationship})
}

// AudioChanged enqueues an audio re-check.
func (e *Engine) AudioChanged() bool {
	return e.Enqueue(Event{Type: EventTypeAudio})
}

// RolesChanged enqueues a role re-check.
func (e *Engine) RolesChanged() bool {
	return e.Enqueue(Event{Type: EventTypeRoles})
}

// StreamChanged enqueues a stream reconciliation.
func (e *Engine) StreamChanged() bool {
	return e.Enqueue(Event{Type: EventTypeStream})
}

// SelfAudioChanged enqueues a self mute and deafen check.
func (e *Engine) SelfAudioChanged() bool {
	return e.Enqueue(Event{Type: EventTypeSelfAudio})
}

// StageChanged enqueues a stage flag recheck of the local participant's
// room.
func (e *Engine) StageChanged() bool {
	return e.Enqueue(Event{Type: EventTypeStage})
}

// Reevaluate enqueues a manual re-check of kind, or of everything.
func (e *Engine) Reevaluate(kind ir.CheckKind) bool {
	return e.Enqueue(Event{Type: EventTypeReevaluate, Kind: kind})
}

// UpdateSettings enqueues a settings update.
func (e *Engine) UpdateSettings(s *ir.Settings) bool {
	return e.Enqueue(Event{Type: EventTypeSettings, Settings: s})
}

// Snapshot asks the loop for the current cache state and waits for it.
func (e *Engine) Snapshot(ctx context.Context) (membership.State, error) {
	reply := make(chan membership.State, 1)
	if !e.Enqueue(Event{Type: EventTypeQuery, Reply: reply}) {
		return membership.State{}, ErrStopped
	}
	select {
	case <-ctx.Done():
		return membership.State{}, ctx.Err()
	case st := <-reply:
		return st, nil
	}
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop is called. After Stop, events
// already queued are still handled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		if event, ok := e.queue.TryPop(); ok {
			e.metrics.SetQueueDepth("engine", e.queue.Len())
			if err := e.processEvent(ctx, event); err != nil {
				logEventError(e.logger, event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue, which makes Run return once it is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// processEvent routes an event to the host.
// Called only from the Run goroutine.
func (e *Engine) processEvent(ctx context.Context, ev Event) error {
	var out []ir.Notification

	switch ev.Type {
	case EventTypePresence:
		out = e.host.OnRoomPresenceChanged(ctx, ev.Presence...)
	case EventTypeRelationship:
		out = e.host.OnRelationshipChanged(ctx)
	case EventTypeAudio:
		out = e.host.OnAudioStateChanged(ctx)
	case EventTypeRoles:
		out = e.host.OnRolesChanged(ctx)
	case EventTypeReevaluate:
		out = e.host.ForceReevaluate(ctx, ev.Kind)
	case EventTypeStream:
		out = e.host.OnStreamChanged(ctx)
	case EventTypeSelfAudio:
		out = e.host.OnSelfAudioChanged(ctx)
	case EventTypeStage:
		out = e.host.OnStageChanged(ctx)
	case EventTypeSettings:
		if ev.Settings == nil {
			return newInvalidEvent(ev.seq, "settings event missing settings")
		}
		out = e.host.OnSettingsChanged(ctx, ev.Settings)
	case EventTypeQuery:
		if ev.Reply == nil {
			return newInvalidEvent(ev.seq, "query event missing reply channel")
		}
		ev.Reply <- e.host.Snapshot()
		return nil
	default:
		return &RuntimeError{Code: ErrCodeUnknownEvent, Message: fmt.Sprintf("unknown event type: %d", ev.Type), Seq: ev.seq}
	}

	e.logger.Debug("event processed",
		"seq", ev.seq,
		"type", ev.Type.String(),
		"notifications", len(out),
	)
	if ev.Done != nil {
		ev.Done <- out
	}
	if e.onPass != nil {
		e.onPass(ev, out)
	}
	return nil
}

func logEventError(logger *slog.Logger, ev Event, err error) {
	logger.Error("event processing failed",
		"seq", ev.seq,
		"type", ev.Type.String(),
		"presence_events", len(ev.Presence),
		"kind", ev.Kind,
		"error", err,
	)
}
