package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
	"github.com/couchcryptid/hazard-alert-service/internal/engine"
)

// AlertEngine is the part of the engine the HTTP API reads and configures.
type AlertEngine interface {
	sharedobs.ReadinessChecker
	Hazards() []domain.HazardPoint
	StateOf(id string) (domain.Phase, bool)
	Config() domain.EngineConfig
	Configure(patch domain.ConfigPatch) error
	LastLocation() (engine.LastFix, bool)
}

// Server exposes health, readiness, metrics, and the alert engine's
// hazards, config, and last fix.
type Server struct {
	httpServer *http.Server
	engine     AlertEngine
	logger     *slog.Logger
}

type hazardView struct {
	domain.HazardPoint
	Phase domain.Phase `json:"phase"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and the /v1 API routes.
func NewServer(addr string, eng AlertEngine, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine: eng,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(eng))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/hazards", s.handleListHazards)
	mux.HandleFunc("GET /v1/hazards/{id}", s.handleGetHazard)
	mux.HandleFunc("GET /v1/config", s.handleGetConfig)
	mux.HandleFunc("PATCH /v1/config", s.handlePatchConfig)
	mux.HandleFunc("GET /v1/location", s.handleLocation)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleListHazards(w http.ResponseWriter, _ *http.Request) {
	points := s.engine.Hazards()
	views := make([]hazardView, 0, len(points))
	for _, p := range points {
		views = append(views, s.view(p))
	}
	sharedobs.WriteJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetHazard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, p := range s.engine.Hazards() {
		if p.ID == id {
			sharedobs.WriteJSON(w, http.StatusOK, s.view(p))
			return
		}
	}
	sharedobs.WriteJSON(w, http.StatusNotFound, errorResponse{Error: "hazard not found"})
}

func (s *Server) view(p domain.HazardPoint) hazardView {
	phase, _ := s.engine.StateOf(p.ID)
	return hazardView{HazardPoint: p, Phase: phase}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch domain.ConfigPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid config patch: " + err.Error()})
		return
	}

	if err := s.engine.Configure(patch); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidConfig) {
			status = http.StatusUnprocessableEntity
		}
		sharedobs.WriteJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleLocation(w http.ResponseWriter, _ *http.Request) {
	fix, ok := s.engine.LastLocation()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorResponse{Error: "no location received yet"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, fix)
}
