package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/sequencer/internal/activity"
	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/diagram"
	"github.com/rendis/sequencer/internal/session"
	"github.com/rendis/sequencer/internal/store"
	"github.com/rendis/sequencer/internal/validation"
	"github.com/rendis/sequencer/pkg/schema"
)

// stepResult is returned by every tool that moves or edits a session.
type stepResult struct {
	Session  session.Status `json:"session"`
	Activity *activityView  `json:"activity,omitempty"`
}

type activityView struct {
	ID       string         `json:"id"`
	ConfigID string         `json:"config_id"`
	Data     any            `json:"data,omitempty"`
	Next     schema.Verdict `json:"next"`
}

// handleOpen creates a session and builds its first activity.
func (s *SequencerServer) handleOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := req.RequireStringSlice("activity_ids")
	if err != nil || len(ids) == 0 {
		return mcp.NewToolResultError("activity_ids is required"), nil
	}

	seed := validation.Selection{}
	objects := mcp.ParseStringMap(req, "objects", nil)
	for _, name := range slices.Sorted(maps.Keys(objects)) {
		obj, decErr := s.decodeObject(objects[name])
		if decErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("object %q: %v", name, decErr)), nil
		}
		seed[name] = obj
	}

	sess, openErr := s.manager.Open(ctx, ids, seed)
	if openErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open failed: %v", openErr)), nil
	}

	// Capture session mapping for notifications.
	s.captureSession(ctx, sess.ID())

	_, act := sess.Current()
	return marshalResult(step(sess, act))
}

// handleNext validates the current activity and advances.
func (s *SequencerServer) handleNext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.move(ctx, req, "next", func(sess *session.Session) (*activity.Activity, error) {
		return sess.Next(ctx)
	})
}

// handlePrevious moves back one activity.
func (s *SequencerServer) handlePrevious(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.move(ctx, req, "previous", func(sess *session.Session) (*activity.Activity, error) {
		return sess.Previous(ctx)
	})
}

// handleGoTo jumps to an index.
func (s *SequencerServer) handleGoTo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError("index is required"), nil
	}
	return s.move(ctx, req, "goto", func(sess *session.Session) (*activity.Activity, error) {
		return sess.GoTo(ctx, index)
	})
}

// handleRollback drops activities from an index onwards.
func (s *SequencerServer) handleRollback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError("index is required"), nil
	}
	return s.move(ctx, req, "rollback", func(sess *session.Session) (*activity.Activity, error) {
		if err := sess.Rollback(ctx, index); err != nil {
			return nil, err
		}
		_, act := sess.Current()
		return act, nil
	})
}

// handleReset discards everything built so far.
func (s *SequencerServer) handleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.move(ctx, req, "reset", func(sess *session.Session) (*activity.Activity, error) {
		return nil, sess.Reset(ctx)
	})
}

// handleSet binds an object to a requirement of the current activity.
func (s *SequencerServer) handleSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	raw := mcp.ParseStringMap(req, "object", nil)
	if raw == nil {
		return mcp.NewToolResultError("object is required"), nil
	}
	obj, decErr := s.decodeObject(raw)
	if decErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("object %q: %v", name, decErr)), nil
	}
	return s.move(ctx, req, "set", func(sess *session.Session) (*activity.Activity, error) {
		if err := sess.Bind(ctx, name, obj); err != nil {
			return nil, err
		}
		_, act := sess.Current()
		return act, nil
	})
}

// handleValidate reports every verdict of the current activity.
func (s *SequencerServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.session(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	results, err := sess.Report()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validate failed: %v", err)), nil
	}
	valid := true
	for _, r := range results {
		valid = valid && r.Verdict.Valid
	}
	return marshalResult(map[string]any{
		"session_id": sess.ID(),
		"valid":      valid,
		"results":    results,
	})
}

// handleStatus returns the position and state of a session.
func (s *SequencerServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.session(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	_, act := sess.Current()
	return marshalResult(step(sess, act))
}

// handleActivities lists the built activities.
func (s *SequencerServer) handleActivities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.session(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	return marshalResult(map[string]any{
		"session_id": sess.ID(),
		"activities": sess.Activities(),
	})
}

// handleHistory replays the event log of a session.
func (s *SequencerServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	trail, histErr := s.manager.History(ctx, id)
	if histErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history failed: %v", histErr)), nil
	}
	return marshalResult(trail)
}

// handleList lists loaded and stored sessions.
func (s *SequencerServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.SessionFilter{Limit: req.GetInt("limit", 0)}
	if status := req.GetString("status", ""); status != "" {
		st := schema.SessionStatus(status)
		filter.Status = &st
	}
	list, err := s.manager.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"sessions": list, "count": len(list)})
}

// handleDiagram renders the progress of a session.
func (s *SequencerServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}
	sess, errResult := s.session(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	model := sess.Diagram()
	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultImage("session progress", base64.StdEncoding.EncodeToString(png), "image/png"), nil
	}
}

// --- Helpers ---

// move loads the session named by the request, runs op on it and renders
// where the session ended up.
func (s *SequencerServer) move(ctx context.Context, req mcp.CallToolRequest, op string,
	fn func(*session.Session) (*activity.Activity, error)) (*mcp.CallToolResult, error) {
	sess, errResult := s.session(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	act, err := fn(sess)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err)), nil
	}
	return marshalResult(step(sess, act))
}

func (s *SequencerServer) session(ctx context.Context, req mcp.CallToolRequest) (*session.Session, *mcp.CallToolResult) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return nil, mcp.NewToolResultError("session_id is required")
	}
	sess, getErr := s.manager.Get(ctx, id)
	if getErr != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("session lookup failed: %v", getErr))
	}
	s.captureSession(ctx, id)
	return sess, nil
}

// decodeObject turns a {type, id, value} map into a data object.
func (s *SequencerServer) decodeObject(v any) (data.Object, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return s.manager.Factory().Decode(raw)
}

func step(sess *session.Session, act *activity.Activity) stepResult {
	out := stepResult{Session: sess.Status()}
	if act != nil {
		out.Activity = &activityView{
			ID:       act.ID(),
			ConfigID: act.ConfigID(),
			Data:     act.Properties()["data"],
			Next:     sess.CheckNext(),
		}
	}
	return out
}

// captureSession maps the sequencing session to the calling MCP client for
// notifications.
func (s *SequencerServer) captureSession(ctx context.Context, sessionID string) {
	if client := server.ClientSessionFromContext(ctx); client != nil {
		s.sessions.Register(sessionID, client.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
