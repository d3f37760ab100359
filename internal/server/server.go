package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/metric"
	"github.com/roach88/rollcall/internal/presence"
)

// SettingsStore persists settings changes made through the API.
type SettingsStore interface {
	SaveSettings(ctx context.Context, s *ir.Settings) error
	SetGroupEnabled(ctx context.Context, kind ir.CheckKind, name string, enabled bool) (bool, error)
	SetCheckEnabled(ctx context.Context, kind ir.CheckKind, enabled bool) error
}

// DefaultWaitTimeout bounds how long ?wait=true blocks on the engine.
const DefaultWaitTimeout = 5 * time.Second

// Server is the HTTP control API.
type Server struct {
	engine   *engine.Engine
	registry *presence.Registry
	store    SettingsStore
	stream   http.Handler
	metrics  *metric.Metrics
	logger   *slog.Logger
	wait     time.Duration

	// mu serializes settings writers. settings is the last snapshot
	// handed to the engine.
	mu       sync.Mutex
	settings *ir.Settings
}

// Option configures a Server.
type Option func(*Server)

// WithStore persists toggles and reloads through st.
func WithStore(st SettingsStore) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithStream serves h at /v1/ws.
func WithStream(h http.Handler) Option {
	return func(s *Server) {
		s.stream = h
	}
}

// WithMetrics serves m at /metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithWaitTimeout bounds ?wait=true requests.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.wait = d
	}
}

// New creates a server over eng and reg. settings is the snapshot the
// engine was started with.
func New(eng *engine.Engine, reg *presence.Registry, settings *ir.Settings, opts ...Option) *Server {
	s := &Server{
		engine:   eng,
		registry: reg,
		settings: settings.Clone(),
		logger:   slog.Default(),
		wait:     DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/presence", s.presence)
		r.Route("/entities/{id}", func(r chi.Router) {
			r.Put("/audio", s.audio)
			r.Put("/relationship", s.relationship)
			r.Put("/roles", s.roles)
		})
		r.Put("/streams/{owner}", s.streamChanged)
		r.Put("/rooms/{id}", s.room)
		r.Put("/self/audio", s.selfAudio)
		r.Post("/reevaluate", s.reevaluate)
		r.Put("/groups/{kind}/{name}", s.toggle)
		r.Get("/state", s.state)
		if s.stream != nil {
			r.Method(http.MethodGet, "/ws", s.stream)
		}
	})
	return r
}

// Settings returns the last snapshot handed to the engine.
func (s *Server) Settings() *ir.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// ReplaceSettings persists next and hands it to the engine. Used when the
// settings directory is reloaded.
func (s *Server) ReplaceSettings(ctx context.Context, next *ir.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		if err := s.store.SaveSettings(ctx, next); err != nil {
			return err
		}
	}
	s.settings = next.Clone()
	if !s.engine.UpdateSettings(s.settings.Clone()) {
		return engine.ErrStopped
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
