// Package api exposes the simulation over HTTP and a websocket position
// stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/observability"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/sim/state"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/store"
	"github.com/signalsfoundry/terrain-traversal-sim/timectrl"
)

const (
	defaultPlaybackTick = 100 * time.Millisecond
	maxBodyBytes        = 8 << 20
)

// playbackEpoch is time zero of every run on the playback clock.
var playbackEpoch = time.Unix(0, 0).UTC()

// Server wires SimulationState, the run archive, the playback clock and the
// websocket hub behind a chi router.
type Server struct {
	state   *state.SimulationState
	archive *store.Store
	clock   *timectrl.TimeController
	hub     *Hub
	metrics *observability.HTTPCollector
	log     logging.Logger

	allowedOrigins []string
	unsubscribe    func()
}

// Option customises Server construction.
type Option func(*Server)

// WithStore enables the /archive routes.
func WithStore(st *store.Store) Option {
	return func(s *Server) { s.archive = st }
}

// WithHTTPCollector enables request metrics and the /metrics route.
func WithHTTPCollector(c *observability.HTTPCollector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPlaybackClock replaces the default 100ms real-time playback clock.
func WithPlaybackClock(tc *timectrl.TimeController) Option {
	return func(s *Server) {
		if tc != nil {
			s.clock = tc
		}
	}
}

// WithAllowedOrigins restricts websocket upgrades to the listed origins.
// An empty list accepts any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// NewServer constructs a Server over st.
func NewServer(st *state.SimulationState, opts ...Option) *Server {
	s := &Server{
		state: st,
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.clock == nil {
		s.clock = timectrl.NewTimeController(playbackEpoch, defaultPlaybackTick, timectrl.RealTime)
	}
	s.clock.StartTime = playbackEpoch
	s.clock.Reset()
	s.hub = NewHub(s.log)
	s.clock.AddListener(s.onTick)
	s.unsubscribe = st.OnRun(s.onRun)
	return s
}

// Close stops playback, detaches from state, and drops websocket clients.
func (s *Server) Close() {
	s.clock.Stop()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.hub.Close()
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(observability.TracingMiddleware)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/entities", func(r chi.Router) {
		r.Get("/", s.handleListEntities)
		r.Post("/", s.handleCreateEntity)
		r.Delete("/", s.handleClear)
		r.Get("/{id}", s.handleGetEntity)
		r.Patch("/{id}", s.handleUpdateEntity)
		r.Delete("/{id}", s.handleDeleteEntity)
	})

	r.Post("/scenario", s.handleLoadScenario)
	r.Get("/dem", s.handleDEM)
	r.Get("/slope-policies", s.handleSlopePolicies)

	r.Post("/simulate", s.handleSimulate)
	r.Get("/run", s.handleRun)
	r.Get("/run/geojson", s.handleRunGeoJSON)
	r.Get("/run/csv", s.handleRunCSV)
	r.Get("/positions", s.handlePositions)

	r.Route("/archive", func(r chi.Router) {
		r.Use(s.requireArchive)
		r.Get("/", s.handleListArchive)
		r.Post("/", s.handleSaveArchive)
		r.Get("/{id}", s.handleGetArchive)
		r.Delete("/{id}", s.handleDeleteArchive)
	})

	r.Route("/playback", func(r chi.Router) {
		r.Get("/", s.handlePlaybackStatus)
		r.Post("/start", s.handlePlaybackStart)
		r.Post("/stop", s.handlePlaybackStop)
		r.Post("/seek", s.handlePlaybackSeek)
	})

	r.Get("/ws", s.handleStream)

	return r
}

// requestLogger attaches a request id (honouring X-Request-ID) and a logger
// carrying it to the request context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, s.log)
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set("X-Request-ID", logging.RequestIDFromContext(ctx))

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		reqLog.Debug(ctx, "request handled",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func loggerFrom(ctx context.Context, fallback logging.Logger) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
