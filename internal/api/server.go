// Package api serves the dashboard read side, the admin deletes and the
// outbound publish endpoint as JSON over net/http.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/app/analytics"
	"github.com/fasanicam/ferme-dashboard/internal/app/publish"
	"github.com/fasanicam/ferme-dashboard/internal/app/recent"
	"github.com/fasanicam/ferme-dashboard/internal/app/state"
	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10_000
	defaultStatsLimit   = 60
	defaultTrendHours   = 24
	queryTimeout        = 10 * time.Second
)

// Deps are the collaborators behind the routes. WS may be nil when live
// subscriptions are served elsewhere.
type Deps struct {
	State     *state.Store
	Recent    *recent.Ring[domain.RawMessage]
	Recorder  *analytics.Recorder
	Reader    ports.Reader
	Admin     ports.Admin
	Publisher *publish.Publisher
	WS        http.Handler
	WSPath    string
	Obs       ports.Observability
	Clock     func() time.Time
}

type Server struct {
	d   Deps
	mux *http.ServeMux
}

func NewServer(d Deps) (*Server, error) {
	switch {
	case d.State == nil || d.Recent == nil || d.Recorder == nil:
		return nil, errors.New("api: engine state is required")
	case d.Reader == nil || d.Admin == nil:
		return nil, errors.New("api: store is required")
	case d.Publisher == nil:
		return nil, errors.New("api: publisher is required")
	case d.Obs == nil:
		return nil, errors.New("api: observability is required")
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.WSPath == "" {
		d.WSPath = "/ws"
	}

	s := &Server{d: d, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/messages/recent", s.handleRecent)
	s.mux.HandleFunc("GET /api/history/{module}/{variable}", s.handleHistory)
	s.mux.HandleFunc("GET /api/stats/messages", s.handleMessageStats)
	s.mux.HandleFunc("GET /api/stats/publications", s.handlePublications)
	s.mux.HandleFunc("GET /api/stats/trends", s.handleTrends)
	s.mux.HandleFunc("GET /api/modules", s.handleModules)
	s.mux.HandleFunc("DELETE /api/modules/{module}", s.handleDeleteModule)
	s.mux.HandleFunc("DELETE /api/modules/{module}/{variable}", s.handleDeleteVariable)
	s.mux.HandleFunc("GET /api/analysis", s.handleAnalysisGlobal)
	s.mux.HandleFunc("GET /api/analysis/projects", s.handleAnalysisProjects)
	s.mux.HandleFunc("GET /api/analysis/projects/{name}", s.handleProjectDetails)
	s.mux.HandleFunc("POST /api/publish", s.handlePublish)
	if s.d.WS != nil {
		s.mux.Handle("GET "+s.d.WSPath, s.d.WS)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"variables": s.d.State.Len(),
		"messages":  s.d.Recorder.MessageCount(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.d.State.Snapshot())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.intParam(w, r, "limit", s.d.Recent.Cap(), s.d.Recent.Cap())
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.d.Recent.Snapshot(limit))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.intParam(w, r, "limit", defaultHistoryLimit, maxHistoryLimit)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	points, err := s.d.Reader.History(ctx, r.PathValue("module"), r.PathValue("variable"), limit)
	if err != nil {
		s.storeError(w, "history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(points))
}

func (s *Server) handleMessageStats(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.intParam(w, r, "limit", defaultStatsLimit, 24*60)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	since := s.d.Clock().Add(-time.Duration(limit) * time.Minute)
	stats, err := s.d.Reader.MessageStats(ctx, since, limit)
	if err != nil {
		s.storeError(w, "message stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(stats))
}

func (s *Server) handlePublications(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.d.Recorder.Publications())
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	hours, ok := s.intParam(w, r, "hours", defaultTrendHours, 24*31)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	trends, err := s.d.Reader.PublicationTrends(ctx, s.d.Clock().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		s.storeError(w, "publication trends", err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(trends))
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	modules, err := s.d.Reader.ModulesWithVariables(ctx)
	if err != nil {
		s.storeError(w, "modules", err)
		return
	}
	s.writeJSON(w, http.StatusOK, modules)
}

func (s *Server) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	module := r.PathValue("module")
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	res, err := s.d.Admin.DeleteModule(ctx, module)
	if err != nil {
		s.storeError(w, "delete module", err)
		return
	}
	s.d.Obs.LogInfo("module_deleted",
		ports.Field{Key: "module", Value: module},
		ports.Field{Key: "measurements", Value: res.Measurements},
		ports.Field{Key: "publications", Value: res.Publications})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"module":       module,
		"measurements": res.Measurements,
		"publications": res.Publications,
	})
}

func (s *Server) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	module, variable := r.PathValue("module"), r.PathValue("variable")
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	n, err := s.d.Admin.DeleteVariable(ctx, module, variable)
	if err != nil {
		s.storeError(w, "delete variable", err)
		return
	}
	s.d.Obs.LogInfo("variable_deleted",
		ports.Field{Key: "module", Value: module},
		ports.Field{Key: "variable", Value: variable},
		ports.Field{Key: "measurements", Value: n})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"module":       module,
		"variable":     variable,
		"measurements": n,
	})
}

func (s *Server) handleAnalysisGlobal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	g, err := s.d.Reader.AnalysisGlobal(ctx, s.d.Clock())
	if err != nil {
		s.storeError(w, "global analysis", err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleAnalysisProjects(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	projects, err := s.d.Reader.AnalysisProjects(ctx)
	if err != nil {
		s.storeError(w, "project analysis", err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(projects))
}

func (s *Server) handleProjectDetails(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	details, err := s.d.Reader.ProjectDetails(ctx, name, s.d.Clock())
	if err != nil {
		s.storeError(w, "project details", err)
		return
	}
	if details.Stats.Total == 0 {
		s.writeError(w, http.StatusNotFound, "project not found")
		return
	}
	s.writeJSON(w, http.StatusOK, details)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publish.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	topic, err := s.d.Publisher.Send(r.Context(), req)
	switch {
	case errors.Is(err, publish.ErrBlankField):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ports.ErrNotConnected):
		s.writeError(w, http.StatusServiceUnavailable, "broker not connected")
		return
	case err != nil:
		s.d.Obs.LogError("publish_failed", err, ports.Field{Key: "topic", Value: topic})
		s.writeError(w, http.StatusBadGateway, "publish failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "topic": topic})
}

// intParam reads a positive integer query parameter, capped at ceiling.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string, def, ceiling int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		s.writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return min(v, ceiling), true
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.d.Obs.LogError("api_store_query_failed", err, ports.Field{Key: "op", Value: op})
	s.writeError(w, http.StatusInternalServerError, op+" unavailable")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.d.Obs.LogError("api_encode_failed", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
