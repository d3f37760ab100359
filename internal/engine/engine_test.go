package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/rollcall/internal/catalog"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/membership"
	"github.com/roach88/rollcall/internal/notify"
	"github.com/roach88/rollcall/internal/presence"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupEngine(t *testing.T, s *ir.Settings, opts ...EngineOption) (*Engine, *presence.Registry, *notify.Recorder) {
	t.Helper()
	reg := presence.NewRegistry("self")
	reg.SetSpace("R", "S")
	reg.Move("self", "R")

	cat := catalog.New(presence.FromRegistry(reg), s, catalog.WithLogger(discardLogger()))
	rec := &notify.Recorder{}
	mc := membership.New(cat, rec,
		membership.WithLogger(discardLogger()),
		membership.WithSessionGenerator(membership.NewFixedGenerator("s-1")),
	)
	opts = append([]EngineOption{WithLogger(discardLogger())}, opts...)
	return New(membership.NewHost(mc), opts...), reg, rec
}

// runEngine starts Run and stops it at cleanup.
func runEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("engine did not stop")
		}
	})
}

func someOnly() *ir.Settings {
	checks := make(map[ir.CheckKind]bool)
	for _, k := range ir.AllKinds {
		checks[k] = k == ir.KindSome
	}
	return &ir.Settings{Checks: checks}
}

func TestEngine_Enqueue(t *testing.T) {
	e, _, _ := setupEngine(t, nil)
	assert.True(t, e.RelationshipChanged())
	assert.True(t, e.AudioChanged())
	assert.Equal(t, 2, e.QueueLen())
}

func TestEngine_EnqueueAfterStop(t *testing.T) {
	e, _, _ := setupEngine(t, nil)
	e.Stop()
	assert.False(t, e.Reevaluate(""), "enqueue after stop should fail")

	_, err := e.Snapshot(context.Background())
	assert.True(t, IsStopped(err))
}

func TestEngine_StopDrainsQueue(t *testing.T) {
	e, reg, rec := setupEngine(t, someOnly())
	e.PresenceChanged(reg.Move("A", "R"))
	e.Stop()

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []string{"some-enter", "some-user-enter"}, rec.Messages())
}

func TestEngine_ContextCancel(t *testing.T) {
	e, _, _ := setupEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Run(ctx), context.Canceled)
	assert.False(t, e.AudioChanged(), "queue closed on cancel")
}

func TestEngine_ProcessesInOrder(t *testing.T) {
	var types []EventType
	e, reg, rec := setupEngine(t, someOnly(), WithPassObserver(func(ev Event, _ []ir.Notification) {
		types = append(types, ev.Type)
	}))

	e.PresenceChanged(reg.Move("A", "R"))
	e.PresenceChanged(reg.Leave("A"))
	e.Reevaluate(ir.KindSome)
	e.Stop()
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, []EventType{EventTypePresence, EventTypePresence, EventTypeReevaluate}, types)
	assert.Equal(t, []string{"some-enter", "some-user-enter", "some-leave", "some-user-leave"}, rec.Messages())
}

func TestEngine_DoneChannel(t *testing.T) {
	e, reg, _ := setupEngine(t, someOnly())
	runEngine(t, e)

	done := make(chan []ir.Notification, 1)
	reg.Move("A", "R")
	require.True(t, e.Enqueue(Event{Type: EventTypeReevaluate, Done: done}))

	select {
	case ns := <-done:
		require.Len(t, ns, 1)
		assert.Equal(t, "some-enter", ns[0].Message)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}

func TestEngine_SettingsAndSnapshot(t *testing.T) {
	e, reg, _ := setupEngine(t, someOnly())
	runEngine(t, e)
	reg.Move("A", "R")

	next := someOnly()
	next.Checks[ir.KindPatterns] = true
	next.Patterns = []ir.Pattern{{NamedGroup: ir.NamedGroup{Name: "anyone", Enabled: true}, Expression: "present"}}
	require.True(t, e.UpdateSettings(next))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := e.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, "s-1", st.Session)
	assert.Equal(t, "R", st.RoomID)
	assert.Equal(t, []membership.Entry{
		{Kind: ir.KindSome, Satisfied: true},
		{Kind: ir.KindPatterns, Source: "anyone", Satisfied: true},
	}, st.Entries)
}

func TestEngine_StreamAndSelfAudio(t *testing.T) {
	e, reg, rec := setupEngine(t, someOnly())
	reg.StartStream("self", "live")
	reg.SetSelfAudio(true, false)
	require.True(t, e.StreamChanged())
	require.True(t, e.SelfAudioChanged())
	e.Stop()

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []string{"self-mute"}, rec.Messages(), "no stream context configured")
}

func TestEngine_StageChanged(t *testing.T) {
	e, reg, rec := setupEngine(t, someOnly())
	e.PresenceChanged(reg.Move("A", "R"))
	reg.SetStage("R", true)
	e.StageChanged()
	reg.SetStage("R", false)
	e.StageChanged()
	e.Stop()

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []string{
		"some-enter", "some-user-enter",
		"some-leave",
		"some-enter",
	}, rec.Messages())
}

func TestEngine_InvalidEventsAreLoggedAndSkipped(t *testing.T) {
	e, reg, rec := setupEngine(t, someOnly())
	e.Enqueue(Event{Type: EventTypeSettings})
	e.Enqueue(Event{Type: EventTypeQuery})
	e.Enqueue(Event{Type: EventType(99)})
	e.PresenceChanged(reg.Move("A", "R"))
	e.Stop()

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []string{"some-enter", "some-user-enter"}, rec.Messages(), "processing continued")
}

func TestEngine_ProcessEventErrors(t *testing.T) {
	e, _, _ := setupEngine(t, nil)
	ctx := context.Background()

	err := e.processEvent(ctx, Event{Type: EventTypeSettings, seq: 4})
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInvalidEvent, re.Code)
	assert.Equal(t, "INVALID_EVENT: settings event missing settings (seq=4)", re.Error())

	err = e.processEvent(ctx, Event{Type: EventType(42)})
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeUnknownEvent, re.Code)
	assert.False(t, IsStopped(err))
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "presence", EventTypePresence.String())
	assert.Equal(t, "query", EventTypeQuery.String())
	assert.Equal(t, "stream", EventTypeStream.String())
	assert.Equal(t, "self-audio", EventTypeSelfAudio.String())
	assert.Equal(t, "stage", EventTypeStage.String())
	assert.Equal(t, "EventType(12)", EventType(12).String())
}
