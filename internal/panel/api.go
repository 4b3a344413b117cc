package panel

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rendis/sequencer/internal/diagram"
	"github.com/rendis/sequencer/internal/store"
	"github.com/rendis/sequencer/pkg/schema"
)

func (s *PanelServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"loaded": s.deps.Manager.Loaded(),
	})
}

// handleListSessions lists loaded and stored sessions.
// Query: ?status=active&limit=50&offset=0
func (s *PanelServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionFilter{
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st := schema.SessionStatus(v)
		filter.Status = &st
	}

	list, err := s.deps.Manager.List(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list, "count": len(list)})
}

func (s *PanelServer) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": sess.Status(),
		"next":    sess.CheckNext(),
	})
}

func (s *PanelServer) handleSessionActivities(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID(),
		"activities": sess.Activities(),
	})
}

func (s *PanelServer) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	trail, err := s.deps.Manager.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

// handleSessionDiagram renders session progress.
// Query: ?format=mermaid|ascii|image|svg (default mermaid)
func (s *PanelServer) handleSessionDiagram(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "mermaid"
	}
	switch format {
	case "ascii", "mermaid", "image", "svg":
	default:
		writeError(w, http.StatusBadRequest, "format must be ascii, mermaid, image or svg")
		return
	}

	sess, err := s.deps.Manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	model := sess.Diagram()

	switch format {
	case "ascii":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, diagram.RenderASCII(model))
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, diagram.RenderMermaid(model))
	default:
		render, contentType := diagram.RenderImage, "image/png"
		if format == "svg" {
			render, contentType = diagram.RenderSVG, "image/svg+xml"
		}
		out, err := render(r.Context(), model)
		if err != nil {
			s.deps.Logger.Error("render diagram", "session_id", sess.ID(), "format", format, "error", err)
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("render %s: %v", format, err))
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(out)
	}
}

func (s *PanelServer) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Manager.Save(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "saved"})
}

func (s *PanelServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Manager.Delete(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Scheduler ---

func (s *PanelServer) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.deps.Scheduler.Jobs()
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// handleUpdateJob toggles a job. Body: {"enabled": false}
func (s *PanelServer) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	name := r.PathValue("name")
	if err := s.deps.Scheduler.SetEnabled(name, *body.Enabled); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "enabled": *body.Enabled})
}

func (s *PanelServer) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.deps.Scheduler.RunNow(r.Context(), name); err != nil {
		if schema.HasCode(err, schema.ErrCodeNotFound) || schema.HasCode(err, schema.ErrCodeConflict) {
			writeErr(w, err)
			return
		}
		// The job ran and failed; its status already records that.
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "status": "success"})
}
