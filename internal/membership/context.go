// Package membership tracks which groups are satisfied in the local
// participant's room and notifies on every transition.
//
// A Context recomputes every strategy on each pass and diffs the boolean
// results against its cache. It is not reentrant and carries no lock: the
// host serializes calls (see package engine).
package membership

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/rollcall/internal/catalog"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/metric"
	"github.com/roach88/rollcall/internal/notify"
	"github.com/roach88/rollcall/internal/strategy"
)

// Context is the membership orchestrator for one local participant.
type Context struct {
	catalog  *catalog.Catalog
	table    *strategy.Table
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metric.Metrics
	sessions SessionGenerator
	clock    *Clock
	feed     ir.Feed

	cache   map[ir.CacheKey]bool
	order   []ir.CacheKey // insertion order of cache keys
	session string
	room    string
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithMetrics records passes and notifications.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Context) {
		c.metrics = m
	}
}

// WithSessionGenerator sets the room session token source.
func WithSessionGenerator(g SessionGenerator) Option {
	return func(c *Context) {
		c.sessions = g
	}
}

// WithStrategies replaces the default strategy table.
func WithStrategies(t *strategy.Table) Option {
	return func(c *Context) {
		c.table = t
	}
}

// WithFeed attributes every group notification to feed f.
func WithFeed(f ir.Feed) Option {
	return func(c *Context) {
		c.feed = f
	}
}

// WithClock sets the pass clock.
func WithClock(clock *Clock) Option {
	return func(c *Context) {
		c.clock = clock
	}
}

// New creates a Context that evaluates against cat and reports to n.
func New(cat *catalog.Catalog, n notify.Notifier, opts ...Option) *Context {
	c := &Context{
		catalog:  cat,
		table:    strategy.Default(),
		notifier: n,
		logger:   slog.Default(),
		sessions: UUIDv7Generator{},
		clock:    NewClockAt(0),
		cache:    make(map[ir.CacheKey]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = notify.Discard
	}
	return c
}

// Catalog returns the catalog the context evaluates against.
func (c *Context) Catalog() *catalog.Catalog {
	return c.catalog
}

// Feed returns the feed the context reports on.
func (c *Context) Feed() ir.Feed {
	return c.feed
}

// Room returns the room of the last pass, "" after DisposeAll.
func (c *Context) Room() string {
	return c.room
}

// Session returns the current room session token, "" when idle.
func (c *Context) Session() string {
	return c.session
}

// EvaluateAll runs every enabled strategy over the whole presence set of
// roomID and notifies group-level flips.
func (c *Context) EvaluateAll(ctx context.Context, roomID string) []ir.Notification {
	return c.pass(ctx, metric.TriggerFull, roomID, nil, nil)
}

// EvaluateDelta is EvaluateAll with a delta: strategies also report the
// joined and departed entities that satisfy each group, and those are
// notified per user whether or not the group flipped.
func (c *Context) EvaluateDelta(ctx context.Context, roomID string, joined, left []ir.EntityID) []ir.Notification {
	delta := &ir.Delta{Joined: joined, Left: left}
	return c.pass(ctx, metric.TriggerDelta, roomID, delta, nil)
}

// Evaluate re-checks only the given kinds, without delta. With no kinds
// it behaves like EvaluateAll.
func (c *Context) Evaluate(ctx context.Context, roomID string, kinds ...ir.CheckKind) []ir.Notification {
	return c.pass(ctx, metric.TriggerManual, roomID, nil, kinds)
}

// OnSelfRoomChange handles the local participant changing rooms. ok false
// means it left every room: the cache is disposed. Otherwise roomID is
// evaluated in full. Moving straight from one room to another keeps the
// cache, so only groups whose value differs in the new room notify.
func (c *Context) OnSelfRoomChange(ctx context.Context, roomID string, ok bool) []ir.Notification {
	if !ok || roomID == "" {
		return c.DisposeAll(ctx)
	}
	if c.room != "" && c.room != roomID {
		c.logger.Info("local participant changed room",
			"session", c.session,
			"old_room_id", c.room,
			"new_room_id", roomID,
		)
	}
	return c.EvaluateAll(ctx, roomID)
}

// DisposeAll emits a leave for every cached true entry, in cache order,
// then clears the cache and ends the session.
func (c *Context) DisposeAll(ctx context.Context) []ir.Notification {
	if len(c.order) == 0 && c.session == "" {
		return nil
	}

	pass := c.clock.Next()
	c.metrics.ObservePass(metric.TriggerDispose)

	var out []ir.Notification
	for _, key := range c.order {
		if c.cache[key] {
			out = append(out, ir.NewNotification(key.Kind, key.Source, ir.ScopeGroup, ir.StatusLeave, nil))
		}
	}
	c.stamp(out, pass)

	c.logger.Debug("membership disposed",
		"session", c.session,
		"room_id", c.room,
		"pass", pass,
		"notifications", len(out),
	)

	c.cache = make(map[ir.CacheKey]bool)
	c.order = nil
	c.session = ""
	c.room = ""
	c.metrics.SetSatisfied(0)

	c.dispatch(ctx, out)
	return out
}

// Handles reports whether any of kinds has a strategy in this context.
// With no kinds it reports true.
func (c *Context) Handles(kinds ...ir.CheckKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if c.table.Has(k) {
			return true
		}
	}
	return false
}

// Signal stamps and dispatches local participant signals. They take a
// pass number but touch no cache entry.
func (c *Context) Signal(ctx context.Context, ns ...ir.Notification) []ir.Notification {
	if len(ns) == 0 {
		return nil
	}
	pass := c.clock.Next()
	for i := range ns {
		ns[i].Session = c.session
		ns[i].Pass = pass
		c.metrics.ObserveNotification(ns[i])
	}
	c.logger.Debug("local signals",
		"session", c.session,
		"pass", pass,
		"notifications", len(ns),
	)
	c.dispatch(ctx, ns)
	return ns
}

// pass runs strategies for roomID, commits the new cache values and only
// then dispatches. kinds nil means every registered kind.
func (c *Context) pass(ctx context.Context, trigger, roomID string, delta *ir.Delta, kinds []ir.CheckKind) []ir.Notification {
	if c.session == "" {
		c.session = c.sessions.Generate()
		c.logger.Debug("membership session started", "session", c.session, "room_id", roomID)
	}
	c.room = roomID

	rooms := c.catalog.Sources().Rooms
	env := strategy.Env{
		Catalog: c.catalog,
		Room:    ir.RoomContext{RoomID: roomID},
	}
	var present []ir.EntityID
	if rooms != nil {
		env.Room.SpaceID = rooms.SpaceOf(roomID)
		present = rooms.PresentEntities(roomID)
	}

	results := c.table.Process(env, present, delta, kinds...)
	pass := c.clock.Next()
	c.metrics.ObservePass(trigger)

	var out []ir.Notification
	seen := make(map[ir.CacheKey]bool, len(results))
	for _, r := range results {
		key := r.Key()
		seen[key] = true

		prev, known := c.cache[key]
		if !known {
			c.order = append(c.order, key)
		}
		c.cache[key] = r.IsSatisfied

		// An unknown key is a flip only towards true: nothing was announced
		// for it, so there is nothing to leave.
		if (known && prev != r.IsSatisfied) || (!known && r.IsSatisfied) {
			out = append(out, ir.NewNotification(r.Kind, r.Source, ir.ScopeGroup, ir.StatusFor(r.IsSatisfied), r.SatisfyingIDs))
		}
		if len(r.DeltaJoined) > 0 {
			out = append(out, ir.NewNotification(r.Kind, r.Source, ir.ScopeUser, ir.StatusEnter, r.DeltaJoined))
		}
		if len(r.DeltaLeft) > 0 {
			out = append(out, ir.NewNotification(r.Kind, r.Source, ir.ScopeUser, ir.StatusLeave, r.DeltaLeft))
		}
	}

	out = append(out, c.prune(seen, kinds)...)
	c.stamp(out, pass)
	c.metrics.SetSatisfied(c.satisfiedCount())

	c.logger.Debug("membership pass",
		"session", c.session,
		"feed", c.feed,
		"room_id", roomID,
		"trigger", trigger,
		"pass", pass,
		"present", len(present),
		"results", len(results),
		"notifications", len(out),
	)

	c.dispatch(ctx, out)
	return out
}

// prune drops cache entries of the evaluated kinds that produced no
// result this pass: their group was disabled, removed, or its check was
// turned off. A true entry leaves on the way out.
func (c *Context) prune(seen map[ir.CacheKey]bool, kinds []ir.CheckKind) []ir.Notification {
	var out []ir.Notification
	kept := c.order[:0]
	for _, key := range c.order {
		evaluated := c.table.Has(key.Kind) && (len(kinds) == 0 || slices.Contains(kinds, key.Kind))
		if !evaluated || seen[key] {
			kept = append(kept, key)
			continue
		}
		if c.cache[key] {
			out = append(out, ir.NewNotification(key.Kind, key.Source, ir.ScopeGroup, ir.StatusLeave, nil))
		}
		delete(c.cache, key)
	}
	c.order = kept
	return out
}

func (c *Context) stamp(ns []ir.Notification, pass int64) {
	for i := range ns {
		if c.feed != ir.FeedRoom {
			ns[i] = ns[i].OnFeed(c.feed)
		}
		ns[i].Session = c.session
		ns[i].Pass = pass
		c.metrics.ObserveNotification(ns[i])
	}
}

func (c *Context) dispatch(ctx context.Context, ns []ir.Notification) {
	for _, n := range ns {
		if err := c.notifier.Notify(ctx, n); err != nil {
			c.logger.Warn("notify failed",
				"session", n.Session,
				"pass", n.Pass,
				"message", n.Message,
				"error", err,
			)
		}
	}
}

func (c *Context) satisfiedCount() int {
	n := 0
	for _, key := range c.order {
		if c.cache[key] {
			n++
		}
	}
	return n
}

// Entry is one cached satisfaction value.
type Entry struct {
	Kind      ir.CheckKind `json:"kind"`
	Source    string       `json:"source,omitempty"`
	Satisfied bool         `json:"satisfied"`
}

// State is a point-in-time view of the cache.
type State struct {
	Session string  `json:"session,omitempty"`
	RoomID  string  `json:"room_id,omitempty"`
	Pass    int64   `json:"pass"`
	Entries []Entry `json:"entries"`

	// Stream is the stream viewer cache while the local participant is
	// live. Set by Host.Snapshot only.
	Stream *State `json:"stream,omitempty"`
}

// Snapshot returns the cache in insertion order.
func (c *Context) Snapshot() State {
	s := State{
		Session: c.session,
		RoomID:  c.room,
		Pass:    c.clock.Current(),
		Entries: make([]Entry, 0, len(c.order)),
	}
	for _, key := range c.order {
		s.Entries = append(s.Entries, Entry{Kind: key.Kind, Source: key.Source, Satisfied: c.cache[key]})
	}
	return s
}

// Satisfied reports the cached value for key.
func (c *Context) Satisfied(key ir.CacheKey) (value, known bool) {
	value, known = c.cache[key]
	return value, known
}
