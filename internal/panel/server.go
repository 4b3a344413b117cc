package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rendis/sequencer/internal/metrics"
	"github.com/rendis/sequencer/internal/scheduler"
	"github.com/rendis/sequencer/internal/session"
	"github.com/rendis/sequencer/internal/streaming"
)

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Manager   *session.Manager
	Scheduler *scheduler.Scheduler // nil hides the scheduler routes
	Hub       streaming.EventHub   // nil hides the SSE routes
	Metrics   *prometheus.Registry // nil hides /metrics
	Logger    *slog.Logger
}

// PanelServer serves a read-mostly HTTP view of the sessions: JSON
// endpoints, live event streams and the Prometheus scrape endpoint.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	deps.Logger = deps.Logger.With("component", "panel")
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Sessions.
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionStatus)
	mux.HandleFunc("GET /api/sessions/{id}/activities", s.handleSessionActivities)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleSessionHistory)
	mux.HandleFunc("GET /api/sessions/{id}/diagram", s.handleSessionDiagram)
	mux.HandleFunc("POST /api/sessions/{id}/save", s.handleSaveSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	if s.deps.Scheduler != nil {
		mux.HandleFunc("GET /api/scheduler", s.handleListJobs)
		mux.HandleFunc("PUT /api/scheduler/{name}", s.handleUpdateJob)
		mux.HandleFunc("POST /api/scheduler/{name}/run", s.handleRunJob)
	}

	if s.deps.Hub != nil {
		mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
		mux.HandleFunc("GET /sse/sessions/{id}", s.handleSSESession)
	}

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.deps.Metrics))
	}

	return mux
}
