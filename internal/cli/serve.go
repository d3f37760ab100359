package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/catalog"
	"github.com/roach88/rollcall/internal/config"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/membership"
	"github.com/roach88/rollcall/internal/metric"
	"github.com/roach88/rollcall/internal/notify"
	"github.com/roach88/rollcall/internal/presence"
	"github.com/roach88/rollcall/internal/server"
	"github.com/roach88/rollcall/internal/sink"
	"github.com/roach88/rollcall/internal/store"
	"github.com/roach88/rollcall/internal/strategy"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command. Empty flags fall back
// to the ROLLCALL_* environment.
type ServeOptions struct {
	*RootOptions
	EnvFile     string
	Addr        string
	DBPath      string
	Self        string
	NATSURL     string
	NATSPrefix  string
	JSONLines   string // "-" for stdout
	Reset       bool   // replace stored settings with the directory
	NoWatch     bool
	ReloadDelay time.Duration

	// ready is called with the listen address once the server accepts
	// connections.
	ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <settings-dir>",
		Short: "Run the membership engine behind the HTTP control API",
		Long: `Run the membership engine for one local participant.

Host events arrive through the HTTP control API, notifications go to the
log, the /v1/ws status stream, an optional JSON lines file and an optional
NATS server. Settings toggled through the API are stored in the database
and survive restarts; edits to the settings directory replace them.

Flags default to the environment, optionally loaded from --env-file:
  ROLLCALL_ADDR, ROLLCALL_DB, ROLLCALL_SELF, ROLLCALL_NATS_URL`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EnvFile, "env-file", ".env", "environment file to load")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (env "+config.EnvAddr+", default :8080)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "SQLite settings database (env "+config.EnvDB+", default rollcall.db)")
	cmd.Flags().StringVar(&opts.Self, "self", "", "entity id of the local participant (env "+config.EnvSelf+")")
	cmd.Flags().StringVar(&opts.NATSURL, "nats-url", "", "publish notifications to this NATS server (env "+config.EnvNATSURL+")")
	cmd.Flags().StringVar(&opts.NATSPrefix, "nats-prefix", sink.DefaultSubjectPrefix, "NATS subject prefix")
	cmd.Flags().StringVar(&opts.JSONLines, "jsonl", "", "append notifications as JSON lines to this file (- for stdout)")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "replace stored settings with the settings directory")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "do not reload the settings directory on change")
	cmd.Flags().DurationVar(&opts.ReloadDelay, "reload-delay", config.DefaultDebounce, "quiet period before reloading changed settings")

	return cmd
}

// resolve fills empty flags from the environment.
func (o *ServeOptions) resolve() error {
	if err := config.LoadEnvFile(o.EnvFile); err != nil {
		return fmt.Errorf("load env file %s: %w", o.EnvFile, err)
	}
	env := config.ProcessFromEnv()
	if o.Addr == "" {
		o.Addr = env.Addr
	}
	if o.DBPath == "" {
		o.DBPath = env.DB
	}
	if o.Self == "" {
		o.Self = env.Self
	}
	if o.NATSURL == "" {
		o.NATSURL = env.NATSURL
	}
	if o.Self == "" {
		return fmt.Errorf("local participant is required: set --self or %s", config.EnvSelf)
	}
	return nil
}

func runServe(ctx context.Context, opts *ServeOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := formatter.Logger()

	if err := opts.resolve(); err != nil {
		return formatter.Fail(ExitCommandError, "E001", err.Error())
	}

	res, err := config.LoadDir(dir)
	if err != nil {
		return loadFailure(formatter, err)
	}
	if errs, _ := splitFindings(res.Validate()); len(errs) > 0 {
		return outputValidation(formatter, ValidationResult{Errors: errs})
	}

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, "E_DB_OPEN", err.Error())
	}
	defer st.Close()

	settings, err := initialSettings(ctx, st, res.Settings, opts.Reset, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, "E_DB_WRITE", err.Error())
	}

	metrics := metric.New()
	hub := sink.NewHub(sink.WithHubLogger(logger))
	defer hub.Close()

	sinks := sink.Multi{
		{Name: "log", Sink: sink.NewLog(logger)},
		{Name: "ws", Sink: hub},
	}
	if opts.JSONLines != "" {
		w, closeFn, err := openJSONLines(opts.JSONLines, cmd.OutOrStdout())
		if err != nil {
			return formatter.Fail(ExitCommandError, "E001", err.Error())
		}
		defer closeFn()
		sinks = append(sinks, sink.Named{Name: "jsonl", Sink: sink.NewJSONLines(w)})
	}
	if opts.NATSURL != "" {
		nc, err := sink.DialNATS(opts.NATSURL, logger)
		if err != nil {
			return formatter.Fail(ExitCommandError, "E_NATS", err.Error())
		}
		defer nc.Close()
		sinks = append(sinks, sink.Named{Name: "nats", Sink: sink.NewNATS(nc, opts.NATSPrefix)})
	}

	dispatcher := notify.NewDispatcher(sinks,
		notify.WithLogger(logger),
		notify.WithMetrics(metrics),
		notify.WithSinkName("multi"),
	)

	reg := presence.NewRegistry(ir.EntityID(opts.Self))
	cat := catalog.New(presence.FromRegistry(reg), settings, catalog.WithLogger(logger))
	clock := &membership.Clock{}
	mc := membership.New(cat, dispatcher,
		membership.WithLogger(logger),
		membership.WithMetrics(metrics),
		membership.WithClock(clock),
	)
	// The satisfied gauge tracks the voice room only.
	viewers := membership.New(catalog.New(presence.StreamFromRegistry(reg), settings, catalog.WithLogger(logger)), dispatcher,
		membership.WithLogger(logger),
		membership.WithClock(clock),
		membership.WithStrategies(strategy.StreamDefault()),
		membership.WithFeed(ir.FeedStream),
	)
	eng := engine.New(membership.NewHost(mc, membership.WithStreamContext(viewers)),
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
	)
	api := server.New(eng, reg, settings,
		server.WithStore(st),
		server.WithStream(hub),
		server.WithMetrics(metrics),
		server.WithLogger(logger),
	)

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return formatter.Fail(ExitCommandError, "E_LISTEN", err.Error())
	}
	httpSrv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The engine and dispatcher outlive the signal: they are stopped
	// explicitly at shutdown so queued events and notifications drain.
	loopCtx, cancelLoops := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelLoops()

	var wg sync.WaitGroup
	errc := make(chan error, 4)
	goRun := func(name string, fn func() error) *sync.WaitGroup {
		var own sync.WaitGroup
		own.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer own.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
		return &own
	}

	dispatcherDone := goRun("dispatcher", func() error { return dispatcher.Run(loopCtx) })
	engineDone := goRun("engine", func() error { return eng.Run(loopCtx) })
	if !opts.NoWatch {
		watcher, err := config.NewWatcher(dir, reloadSettings(runCtx, api, logger),
			config.WithDebounce(opts.ReloadDelay),
			config.WithWatchLogger(logger),
		)
		if err != nil {
			ln.Close()
			cancel()
			eng.Stop()
			dispatcher.Close()
			wg.Wait()
			return formatter.Fail(ExitCommandError, "E_WATCH", err.Error())
		}
		goRun("watcher", func() error { return watcher.Run(runCtx) })
	}
	goRun("http", func() error {
		if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	addr := ln.Addr().String()
	logger.Info("rollcall serving",
		"addr", addr,
		"self", opts.Self,
		"db", opts.DBPath,
		"settings_dir", dir,
		"sinks", len(sinks),
	)
	if opts.ready != nil {
		opts.ready(addr)
	}

	<-runCtx.Done()
	logger.Info("rollcall shutting down")

	// HTTP first so no new events arrive, then the engine drains into the
	// dispatcher, then the dispatcher drains into the sinks.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	eng.Stop()
	drain(shutdownCtx, engineDone, cancelLoops, logger, "engine")
	dispatcher.Close()
	drain(shutdownCtx, dispatcherDone, cancelLoops, logger, "dispatcher")
	wg.Wait()
	close(errc)

	var errs []error
	for err := range errc {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return WrapExitError(ExitFailure, "serve failed", err)
	}
	return nil
}

// drain waits for a stopped loop to finish its queue. When ctx expires
// first the loops are cancelled and the rest of the queue is dropped.
func drain(ctx context.Context, done *sync.WaitGroup, cancelLoops context.CancelFunc, logger *slog.Logger, name string) {
	finished := make(chan struct{})
	go func() {
		done.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		logger.Warn("shutdown timed out, dropping queued work", "loop", name)
		cancelLoops()
		<-finished
	}
}

// initialSettings returns the stored settings, or stores and returns
// fromDir when the database is empty or reset is set.
func initialSettings(ctx context.Context, st *store.Store, fromDir *ir.Settings, reset bool, logger *slog.Logger) (*ir.Settings, error) {
	if !reset {
		stored, err := st.LoadSettings(ctx)
		if err == nil {
			logger.Info("using stored settings", "role_groups", len(stored.RoleGroups), "patterns", len(stored.Patterns))
			return stored, nil
		}
		if !errors.Is(err, store.ErrNoSettings) {
			return nil, err
		}
	}
	if err := st.SaveSettings(ctx, fromDir); err != nil {
		return nil, err
	}
	return fromDir, nil
}

// reloadSettings applies a changed settings directory. Invalid settings
// are logged and ignored, the running settings stay in force.
func reloadSettings(ctx context.Context, api *server.Server, logger *slog.Logger) config.ReloadFunc {
	return func(res *config.Result, err error) {
		if err != nil {
			return // logged by the watcher
		}
		findings := res.Validate()
		if config.HasErrors(findings) {
			errs, _ := splitFindings(findings)
			logger.Warn("settings reload rejected",
				"errors", len(errs),
				"first_error", errs[0].Error(),
			)
			return
		}
		if err := api.ReplaceSettings(ctx, res.Settings); err != nil {
			logger.Error("settings reload not applied", "error", err)
			return
		}
		logger.Info("settings applied",
			"role_groups", len(res.Settings.RoleGroups),
			"patterns", len(res.Settings.Patterns),
		)
	}
}

func openJSONLines(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open jsonl file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
