// Package adminapi is the insert-path writer's HTTP surface: liveness,
// metrics, and a synchronous per-table insert endpoint. It owns no
// domain logic of its own beyond routing and wire decoding — every
// request is a thin shim onto catalog.Store and partwriter.Writer.
package adminapi

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"mergetree-writer/internal/catalog"
	"mergetree-writer/internal/config"
	"mergetree-writer/internal/counter"
	"mergetree-writer/internal/eventstream"
	"mergetree-writer/internal/janitor"
	"mergetree-writer/internal/logging"
	"mergetree-writer/internal/partwriter"
	"mergetree-writer/internal/storagepolicy"
	"mergetree-writer/internal/vectorindex"
)

// Server composes every long-lived collaborator the insert path needs
// and lazily builds one partwriter.Writer per table the first time that
// table is inserted into.
type Server struct {
	mux *chi.Mux

	store      catalog.Store
	reserver   *storagepolicy.Reserver
	janitor    *janitor.Registry
	vectorSink *vectorindex.Sink
	tempIndex  *counter.TempIndex
	counters   *counter.EventCounters
	events     *eventstream.Hub
	logger     logging.Logger
	settings   config.WriterConfig

	startTime time.Time

	mu      sync.Mutex
	writers map[string]*partwriter.Writer
}

// New builds a Server. The per-table writers it creates are given a nil
// moveAllowed, so every storage-policy volume is eligible for every part.
func New(
	store catalog.Store,
	reserver *storagepolicy.Reserver,
	janitorRegistry *janitor.Registry,
	vectorSink *vectorindex.Sink,
	tempIndex *counter.TempIndex,
	counters *counter.EventCounters,
	events *eventstream.Hub,
	settings config.WriterConfig,
	logger logging.Logger,
) *Server {
	s := &Server{
		store:      store,
		reserver:   reserver,
		janitor:    janitorRegistry,
		vectorSink: vectorSink,
		tempIndex:  tempIndex,
		counters:   counters,
		events:     events,
		settings:   settings,
		logger:     logger,
		startTime:  time.Now(),
		writers:    make(map[string]*partwriter.Writer),
	}
	s.mux = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler serving the admin API.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) setupMiddleware() {
	s.mux.Use(chimiddleware.Recoverer)
	s.mux.Use(chimiddleware.Timeout(30 * time.Second))
	s.mux.Use(s.requestLogger)
	s.mux.Use(chimiddleware.RequestSize(64 * 1024 * 1024))
	s.mux.Use(chimiddleware.Heartbeat("/ping"))
}

// requestLogger mirrors the structured request logging every other
// component in the process uses, rather than chi's own text logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("admin api request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) setupRoutes() {
	s.mux.Get("/healthz", s.handleHealthz)
	s.mux.Get("/metrics", s.handleMetrics)
	s.mux.Post("/insert/{table}", s.handleInsert)

	s.mux.NotFound(s.handleNotFound)
	s.mux.MethodNotAllowed(s.handleMethodNotAllowed)
}

// healthzResponse mirrors the shape of a standard liveness probe: a
// coarse status plus enough runtime detail to tell a live-but-struggling
// process apart from a dead one.
type healthzResponse struct {
	Status string     `json:"status"`
	Uptime string     `json:"uptime"`
	System systemInfo `json:"system"`
}

type systemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	MemoryMB     uint64 `json:"memory_mb"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := healthzResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).String(),
		System: systemInfo{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			MemoryMB:     mem.Alloc / (1024 * 1024),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.counters.Snapshot())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Path: r.URL.Path})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Path: r.URL.Path})
}

// writerFor returns the cached Writer for table, building one the first
// time the table is seen. The schema lookup happens under the lock so
// two concurrent first-inserts for the same table never race on
// construction.
func (s *Server) writerFor(ctx context.Context, table string) (*partwriter.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.writers[table]; ok {
		return w, nil
	}
	schema, err := s.store.TableSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	w := partwriter.NewWriter(
		schema, s.settings, s.tempIndex, s.reserver, s.janitor, s.vectorSink, s.counters, s.logger, nil,
	)
	s.writers[table] = w
	return w, nil
}

// broadcastEvent is a no-op when the server was built without an
// eventstream hub.
func (s *Server) broadcastEvent(ev eventstream.Event) {
	if s.events == nil {
		return
	}
	ev.Timestamp = time.Now()
	s.events.Broadcast(ev)
}
