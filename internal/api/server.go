// Package api exposes Flowcraft over HTTP: a REST surface for storing
// blueprints and launching runs, plus the websocket observer endpoint.
//
// Grounded on smilemakc-mbflow's internal/infrastructure/api/rest
// package — Server{store, mux, logger}/NewServer/routes/ServeHTTP shape
// and its request-logging/recovery middleware — generalized from that
// package's per-entity Workflow/Execution handlers (each translating a
// JSON DTO into domain.Workflow's node/edge/trigger decomposition) down
// to direct (de)serialization of blueprint.Blueprint, which is already
// fully json-tagged and needs no DTO layer.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/gorango/flowcraft"
	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/wsobserver"
)

// BlueprintRepository is the storage seam this package needs: adapter.
// BlueprintStore's read side (Get) plus a Put so the REST surface can
// register new blueprints. storage.MemoryBlueprintStore and
// storage.PostgresBlueprintStore both satisfy it.
type BlueprintRepository interface {
	Get(ctx context.Context, id string) (*blueprint.Blueprint, bool, error)
	Put(ctx context.Context, bp *blueprint.Blueprint) error
}

// Server is the REST + websocket façade over a Runtime, a blueprint
// store, and an event hub.
type Server struct {
	mux        *http.ServeMux
	logger     zerolog.Logger
	runtime    *flowcraft.Runtime
	blueprints BlueprintRepository
	hub        *wsobserver.Hub
}

// Config mirrors rest.ServerConfig's EnableCORS flag (rate limiting is
// out of scope here, same as the teacher's MVP server). routes accepts
// it but does not read EnableCORS: the server sets no CORS headers
// whatever its value.
type Config struct {
	EnableCORS bool
}

// NewServer builds a Server and installs its routes.
func NewServer(rt *flowcraft.Runtime, blueprints BlueprintRepository, hub *wsobserver.Hub, logger zerolog.Logger, cfg Config) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		runtime:    rt,
		blueprints: blueprints,
		hub:        hub,
	}
	s.routes(cfg)
	return s
}

func (s *Server) routes(cfg Config) {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("PUT /api/v1/blueprints/{id}", s.handlePutBlueprint)
	s.mux.HandleFunc("GET /api/v1/blueprints/{id}", s.handleGetBlueprint)
	s.mux.HandleFunc("POST /api/v1/blueprints/{id}/runs", s.handleRunBlueprint)
	s.mux.Handle("GET /ws", wsobserver.NewHandler(s.hub, s.logger))
	_ = cfg
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error().Interface("panic", err).Str("path", r.URL.Path).Msg("http handler panicked")
			http.Error(rw, "internal server error", http.StatusInternalServerError)
		}
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}()
	s.mux.ServeHTTP(rw, r)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
