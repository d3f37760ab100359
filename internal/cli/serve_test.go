package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/config"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/store"
)

const serveSettings = `checks: {friends: false, blocked: false, blacklist: false}`

type serveHarness struct {
	addr  string
	dir   string
	db    string
	jsonl string
	errc  chan error
	stop  context.CancelFunc
}

func startServe(t *testing.T, watch bool) *serveHarness {
	t.Helper()
	tmp := t.TempDir()
	h := &serveHarness{
		dir:   writeSettings(t, serveSettings),
		db:    filepath.Join(tmp, "rollcall.db"),
		jsonl: filepath.Join(tmp, "notifications.jsonl"),
		errc:  make(chan error, 1),
	}

	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		EnvFile:     filepath.Join(tmp, "missing.env"),
		Addr:        "127.0.0.1:0",
		DBPath:      h.db,
		Self:        "me",
		JSONLines:   h.jsonl,
		NoWatch:     !watch,
		ReloadDelay: 20 * time.Millisecond,
		ready:       func(addr string) { ready <- addr },
	}
	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	go func() { h.errc <- runServe(ctx, opts, h.dir, cmd) }()

	select {
	case h.addr = <-ready:
	case err := <-h.errc:
		cancel()
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server not ready")
	}
	t.Cleanup(func() { h.shutdown(t) })
	return h
}

// shutdown stops the server once and requires a clean exit.
func (h *serveHarness) shutdown(t *testing.T) {
	t.Helper()
	if h.stop == nil {
		return
	}
	h.stop()
	h.stop = nil
	select {
	case err := <-h.errc:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func (h *serveHarness) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, "http://"+h.addr+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (h *serveHarness) move(t *testing.T, entity, room string, wait bool) []string {
	t.Helper()
	path := "/v1/presence"
	if wait {
		path += "?wait=true"
	}
	body := `{"events":[{"entity_id":"` + entity + `","new_room_id":"` + room + `"}]}`
	status, data := h.do(t, http.MethodPost, path, body)
	if !wait {
		require.Equal(t, http.StatusAccepted, status, string(data))
		return nil
	}
	require.Equal(t, http.StatusOK, status, string(data))
	return responseMessages(t, data)
}

func responseMessages(t *testing.T, data []byte) []string {
	t.Helper()
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Notifications []ir.Notification `json:"notifications"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &resp))
	require.True(t, resp.Success)
	var msgs []string
	for _, n := range resp.Data.Notifications {
		msgs = append(msgs, n.Message)
	}
	return msgs
}

func (h *serveHarness) jsonlContains(substr string) func() bool {
	return func() bool {
		data, err := os.ReadFile(h.jsonl)
		return err == nil && bytes.Contains(data, []byte(substr))
	}
}

func TestServePresence(t *testing.T) {
	h := startServe(t, false)

	status, body := h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"ok"`)

	h.move(t, "A", "R", false)
	assert.Equal(t, []string{"some-enter"}, h.move(t, "me", "R", true))
	assert.Equal(t, []string{"some-user-enter"}, h.move(t, "B", "R", true))

	require.Eventually(t, h.jsonlContains(`{"message":"some-user-enter","type":"control"}`), 5*time.Second, 20*time.Millisecond)

	status, body = h.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "rollcall_")
}

func TestServeTogglePersists(t *testing.T) {
	h := startServe(t, false)

	status, body := h.do(t, http.MethodPut, "/v1/groups/muted/muted?wait=true", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, status, string(body))
	h.shutdown(t)

	st, err := store.Open(h.db)
	require.NoError(t, err)
	defer st.Close()
	s, err := st.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.False(t, s.CheckEnabled(ir.KindMuted))
	assert.False(t, s.CheckEnabled(ir.KindFriends))
}

func TestServeReloadsSettingsDir(t *testing.T) {
	h := startServe(t, true)

	assert.Equal(t, []string{"some-enter"}, h.move(t, "me", "R", true))

	src := "package settings\n\n" + `checks: {some: false, friends: false, blocked: false, blacklist: false}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "settings.cue"), []byte(src), 0644))

	require.Eventually(t, h.jsonlContains(`"message":"some-leave"`), 5*time.Second, 20*time.Millisecond)
}

func TestServeDrainsQueuedEventsOnShutdown(t *testing.T) {
	h := startServe(t, false)
	h.move(t, "me", "R", true)

	const joins = 20
	for i := 1; i <= joins; i++ {
		h.move(t, fmt.Sprintf("E%02d", i), "R", false)
	}
	h.shutdown(t)

	data, err := os.ReadFile(h.jsonl)
	require.NoError(t, err)
	assert.Contains(t, string(data), fmt.Sprintf(`"entities":["E%02d"]`, joins))
	assert.Equal(t, joins, bytes.Count(data, []byte(`{"message":"some-user-enter","type":"control"}`)))
}

func TestServeRequiresSelf(t *testing.T) {
	t.Setenv(config.EnvSelf, "")
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		EnvFile:     filepath.Join(t.TempDir(), "missing.env"),
	}
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)

	err := runServe(context.Background(), opts, writeSettings(t, serveSettings), cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "local participant is required")
}

func TestServeRejectsInvalidSettings(t *testing.T) {
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		EnvFile:     filepath.Join(t.TempDir(), "missing.env"),
		DBPath:      filepath.Join(t.TempDir(), "rollcall.db"),
		Self:        "me",
	}
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)

	err := runServe(context.Background(), opts, writeSettings(t, `pattern: loud: "--muted"`), cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Validation failed")
}

func TestServeOptionsResolve(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ROLLCALL_SELF=me-from-env\nROLLCALL_DB=env.db\n"), 0644))

	// Restored on cleanup; unset here so the env file can supply them.
	t.Setenv(config.EnvSelf, "")
	t.Setenv(config.EnvDB, "")
	t.Setenv(config.EnvAddr, "")
	require.NoError(t, os.Unsetenv(config.EnvSelf))
	require.NoError(t, os.Unsetenv(config.EnvDB))
	require.NoError(t, os.Unsetenv(config.EnvAddr))

	opts := &ServeOptions{EnvFile: envFile, DBPath: "flag.db"}
	require.NoError(t, opts.resolve())
	assert.Equal(t, "me-from-env", opts.Self)
	assert.Equal(t, "flag.db", opts.DBPath)
	assert.Equal(t, ":8080", opts.Addr)
}

func TestInitialSettings(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "rollcall.db"))
	require.NoError(t, err)
	defer st.Close()
	logger := (&OutputFormatter{Writer: io.Discard}).Logger()

	fromDir, err := config.CompileString(`checks: {muted: false}`)
	require.NoError(t, err)

	// An empty store takes the directory settings.
	got, err := initialSettings(ctx, st, fromDir, false, logger)
	require.NoError(t, err)
	assert.False(t, got.CheckEnabled(ir.KindMuted))

	require.NoError(t, st.SetCheckEnabled(ctx, ir.KindMuted, true))

	// Stored settings win over the directory.
	got, err = initialSettings(ctx, st, fromDir, false, logger)
	require.NoError(t, err)
	assert.True(t, got.CheckEnabled(ir.KindMuted))

	// Reset puts the directory back.
	got, err = initialSettings(ctx, st, fromDir, true, logger)
	require.NoError(t, err)
	assert.False(t, got.CheckEnabled(ir.KindMuted))
	stored, err := st.LoadSettings(ctx)
	require.NoError(t, err)
	assert.False(t, stored.CheckEnabled(ir.KindMuted))
}
