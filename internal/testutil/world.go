// Package testutil wires deterministic in-memory hosts for tests and the
// scenario harness.
package testutil

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/rollcall/internal/catalog"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/membership"
	"github.com/roach88/rollcall/internal/metric"
	"github.com/roach88/rollcall/internal/notify"
	"github.com/roach88/rollcall/internal/presence"
	"github.com/roach88/rollcall/internal/strategy"
)

// DefaultSelf is the local participant of a World unless WithSelf is used.
const DefaultSelf ir.EntityID = "self"

// World is a presence registry, a catalog over it, and a membership host
// whose notifications land in Recorder. Stream is the viewer context of
// the local participant's stream; both contexts share one pass clock.
//
// Session tokens come from a FixedGenerator, so two worlds driven through
// the same steps produce identical notifications.
type World struct {
	Registry *presence.Registry
	Catalog  *catalog.Catalog
	Recorder *notify.Recorder
	Context  *membership.Context
	Stream   *membership.Context
	Host     *membership.Host
}

type worldConfig struct {
	self     ir.EntityID
	sessions []string
	streams  []string
	notifier notify.Notifier
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// WorldOption configures NewWorld.
type WorldOption func(*worldConfig)

// WithSelf sets the local participant.
func WithSelf(id ir.EntityID) WorldOption {
	return func(c *worldConfig) {
		c.self = id
	}
}

// WithSessions sets the session tokens handed out in order.
func WithSessions(tokens ...string) WorldOption {
	return func(c *worldConfig) {
		c.sessions = tokens
	}
}

// WithStreamSessions sets the session tokens of the stream viewer context.
func WithStreamSessions(tokens ...string) WorldOption {
	return func(c *worldConfig) {
		c.streams = tokens
	}
}

// WithNotifier sends notifications to n as well as the recorder.
func WithNotifier(n notify.Notifier) WorldOption {
	return func(c *worldConfig) {
		c.notifier = n
	}
}

// WithMetrics records passes in m.
func WithMetrics(m *metric.Metrics) WorldOption {
	return func(c *worldConfig) {
		c.metrics = m
	}
}

// WithLogger replaces the discarding logger.
func WithLogger(logger *slog.Logger) WorldOption {
	return func(c *worldConfig) {
		c.logger = logger
	}
}

// NewWorld builds a world over settings. The local participant starts in
// no room.
func NewWorld(settings *ir.Settings, opts ...WorldOption) *World {
	cfg := worldConfig{
		self:     DefaultSelf,
		sessions: []string{"session-1"},
		streams:  []string{"stream-1"},
		logger:   DiscardLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	reg := presence.NewRegistry(cfg.self)
	cat := catalog.New(presence.FromRegistry(reg), settings, catalog.WithLogger(cfg.logger))
	rec := &notify.Recorder{}

	var n notify.Notifier = rec
	if cfg.notifier != nil {
		extra := cfg.notifier
		n = notify.NotifierFunc(func(ctx context.Context, note ir.Notification) error {
			rec.Notify(ctx, note)
			return extra.Notify(ctx, note)
		})
	}

	clock := &membership.Clock{}
	mc := membership.New(cat, n,
		membership.WithLogger(cfg.logger),
		membership.WithMetrics(cfg.metrics),
		membership.WithClock(clock),
		membership.WithSessionGenerator(membership.NewFixedGenerator(cfg.sessions...)),
	)
	sc := membership.New(catalog.New(presence.StreamFromRegistry(reg), settings, catalog.WithLogger(cfg.logger)), n,
		membership.WithLogger(cfg.logger),
		membership.WithClock(clock),
		membership.WithStrategies(strategy.StreamDefault()),
		membership.WithFeed(ir.FeedStream),
		membership.WithSessionGenerator(membership.NewFixedGenerator(cfg.streams...)),
	)
	return &World{
		Registry: reg,
		Catalog:  cat,
		Recorder: rec,
		Context:  mc,
		Stream:   sc,
		Host:     membership.NewHost(mc, membership.WithStreamContext(sc)),
	}
}

// Place puts the local participant in roomID of spaceID without running
// an evaluation. Use it to set up a world that is already in a room.
func (w *World) Place(roomID, spaceID string) {
	w.Registry.SetSpace(roomID, spaceID)
	w.Registry.Move(w.Registry.SelfID(), roomID)
}

// Messages returns the recorded control messages.
func (w *World) Messages() []string {
	return w.Recorder.Messages()
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
