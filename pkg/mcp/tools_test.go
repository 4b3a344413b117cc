package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/expressions"
	"github.com/rendis/sequencer/internal/registry"
	"github.com/rendis/sequencer/internal/session"
	"github.com/rendis/sequencer/internal/store"
	"github.com/rendis/sequencer/internal/validation"
	"github.com/rendis/sequencer/pkg/schema"
)

// --- Fixtures ---

var flow = []any{"load", "annotate"}

func newTestServer(t *testing.T) *SequencerServer {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.RegisterDocument(&schema.ActivityDocument{Activities: []schema.ActivityInfo{
		{
			ID: "load",
			Requirements: []schema.RequirementDescriptor{
				{Name: "image", Type: data.TypeImage, MinOccurs: 1, MaxOccurs: 1},
				{Name: "label", Type: data.TypeString, MinOccurs: 0, MaxOccurs: 1},
			},
		},
		{
			ID: "annotate",
			Requirements: []schema.RequirementDescriptor{
				{Name: "image", Type: data.TypeImage, MinOccurs: 1, MaxOccurs: 1},
				{Name: "label", Type: data.TypeString, MinOccurs: 1, MaxOccurs: 1},
			},
		},
	}}))

	engines, err := expressions.NewRegistry()
	require.NoError(t, err)
	catalog, err := validation.DefaultCatalog(engines)
	require.NoError(t, err)

	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	manager := session.NewManager(session.Deps{
		Infos:    reg,
		Factory:  data.DefaultFactory(),
		Pipeline: validation.NewPipeline(catalog),
		Store:    st,
		Events:   store.NewEventLog(st),
	})
	return NewSequencerServer(ServerDeps{Manager: manager})
}

func imageObject() map[string]any {
	return map[string]any{
		"type": "Image",
		"id":   "ct-1",
		"value": map[string]any{
			"size":    []any{64, 64, 32},
			"spacing": []any{1, 1, 2},
			"origin":  []any{0, 0, 0},
		},
	}
}

// openSession opens a session over flow and returns its ID.
func openSession(t *testing.T, s *SequencerServer) string {
	t.Helper()
	result, err := s.handleOpen(context.Background(), buildRequest("sequencer.open", map[string]any{
		"activity_ids": flow,
		"objects":      map[string]any{"image": imageObject()},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out stepResult
	unmarshalResult(t, result, &out)
	return out.Session.ID
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// --- Tests ---

func TestOpenTool(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleOpen(context.Background(), buildRequest("sequencer.open", map[string]any{
		"activity_ids": flow,
		"objects":      map[string]any{"image": imageObject()},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out stepResult
	unmarshalResult(t, result, &out)
	assert.NotEmpty(t, out.Session.ID)
	assert.Equal(t, schema.SessionStatusActive, out.Session.Status)
	assert.Equal(t, 0, out.Session.Current)
	require.NotNil(t, out.Activity)
	assert.Equal(t, "load", out.Activity.ConfigID)
	assert.True(t, out.Activity.Next.Valid)
}

func TestOpenToolErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleOpen(ctx, buildRequest("sequencer.open", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// The first activity needs an image.
	result, err = s.handleOpen(ctx, buildRequest("sequencer.open", map[string]any{"activity_ids": flow}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "open failed")

	result, err = s.handleOpen(ctx, buildRequest("sequencer.open", map[string]any{
		"activity_ids": flow,
		"objects":      map[string]any{"image": map[string]any{"type": "Hologram"}},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), `object "image"`)
}

func TestNextRequiresLabel(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := openSession(t, s)

	// annotate needs a label; the move is rejected.
	result, err := s.handleNext(ctx, buildRequest("sequencer.next", map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "next failed")

	result, err = s.handleSet(ctx, buildRequest("sequencer.set", map[string]any{
		"session_id": id,
		"name":       "label",
		"object":     map[string]any{"type": "String", "value": "left"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	result, err = s.handleNext(ctx, buildRequest("sequencer.next", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out stepResult
	unmarshalResult(t, result, &out)
	assert.Equal(t, 1, out.Session.Current)
	assert.Equal(t, "annotate", out.Activity.ConfigID)

	// Last activity: next completes the session.
	result, err = s.handleNext(ctx, buildRequest("sequencer.next", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.SessionStatusCompleted, out.Session.Status)
}

func TestSetToolErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := openSession(t, s)

	result, err := s.handleSet(ctx, buildRequest("sequencer.set", map[string]any{"session_id": id, "name": "label"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleSet(ctx, buildRequest("sequencer.set", map[string]any{
		"session_id": id,
		"name":       "label",
		"object":     map[string]any{"type": "Integer", "value": 3},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "set failed")
}

func TestNavigationTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := openSession(t, s)

	_, err := s.handleSet(ctx, buildRequest("sequencer.set", map[string]any{
		"session_id": id,
		"name":       "label",
		"object":     map[string]any{"type": "String", "value": "left"},
	}))
	require.NoError(t, err)

	result, err := s.handleGoTo(ctx, buildRequest("sequencer.goto", map[string]any{"session_id": id, "index": 1}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	result, err = s.handleGoTo(ctx, buildRequest("sequencer.goto", map[string]any{"session_id": id, "index": 7}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handlePrevious(ctx, buildRequest("sequencer.previous", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var out stepResult
	unmarshalResult(t, result, &out)
	assert.Equal(t, 0, out.Session.Current)

	result, err = s.handleRollback(ctx, buildRequest("sequencer.rollback", map[string]any{"session_id": id, "index": 1}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	unmarshalResult(t, result, &out)
	assert.Equal(t, 1, out.Session.Built)

	result, err = s.handleActivities(ctx, buildRequest("sequencer.activities", map[string]any{"session_id": id}))
	require.NoError(t, err)
	var acts struct {
		Activities []session.ActivityView `json:"activities"`
	}
	unmarshalResult(t, result, &acts)
	require.Len(t, acts.Activities, 1)
	assert.True(t, acts.Activities[0].Current)

	result, err = s.handleReset(ctx, buildRequest("sequencer.reset", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.SessionStatusPending, out.Session.Status)
	assert.Nil(t, out.Activity)
}

func TestValidateTool(t *testing.T) {
	s := newTestServer(t)
	id := openSession(t, s)

	result, err := s.handleValidate(context.Background(), buildRequest("sequencer.validate", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out struct {
		Valid   bool                `json:"valid"`
		Results []validation.Result `json:"results"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, out.Valid)
	assert.NotEmpty(t, out.Results)
}

func TestStatusToolMissingID(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleStatus(context.Background(), buildRequest("sequencer.status", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleStatus(context.Background(), buildRequest("sequencer.status", map[string]any{"session_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "not found")
}

func TestHistoryAndListTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := openSession(t, s)
	openSession(t, s)

	result, err := s.handleHistory(ctx, buildRequest("sequencer.history", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var trail store.Trail
	unmarshalResult(t, result, &trail)
	assert.Equal(t, id, trail.SessionID)
	assert.Equal(t, schema.SessionStatusActive, trail.Status)

	result, err = s.handleList(ctx, buildRequest("sequencer.list", map[string]any{}))
	require.NoError(t, err)
	var list struct {
		Count int `json:"count"`
	}
	unmarshalResult(t, result, &list)
	assert.Equal(t, 2, list.Count)

	result, err = s.handleList(ctx, buildRequest("sequencer.list", map[string]any{"status": "completed"}))
	require.NoError(t, err)
	unmarshalResult(t, result, &list)
	assert.Zero(t, list.Count)
}

func TestDiagramTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := openSession(t, s)

	result, err := s.handleDiagram(ctx, buildRequest("sequencer.diagram", map[string]any{"session_id": id, "format": "mermaid"}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	text := extractText(t, result)
	assert.Contains(t, text, "graph TD")
	assert.Contains(t, text, "class step_0 current")
	assert.Contains(t, text, "class step_1 pending")

	result, err = s.handleDiagram(ctx, buildRequest("sequencer.diagram", map[string]any{"session_id": id, "format": "ascii"}))
	require.NoError(t, err)
	assert.Contains(t, extractText(t, result), "1. load")

	result, err = s.handleDiagram(ctx, buildRequest("sequencer.diagram", map[string]any{"session_id": id, "format": "svg"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
