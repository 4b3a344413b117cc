package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/sequencer/internal/session"
	"github.com/rendis/sequencer/internal/streaming"
)

// ServerDeps holds the dependencies for creating a SequencerServer.
type ServerDeps struct {
	Manager *session.Manager
	Hub     streaming.EventHub // nil disables client notifications
	Version string
	Logger  *slog.Logger
}

// SequencerServer wraps an MCP server with one tool per session operation.
type SequencerServer struct {
	manager   *session.Manager
	hub       streaming.EventHub
	sessions  *SessionRegistry
	notifier  *MCPNotifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewSequencerServer creates a SequencerServer with every tool registered.
func NewSequencerServer(deps ServerDeps) *SequencerServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &SequencerServer{
		manager:  deps.Manager,
		hub:      deps.Hub,
		sessions: NewSessionRegistry(),
		logger:   logger.With("component", "mcp"),
	}

	mcpSrv := server.NewMCPServer(
		"sequencer",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Sequencer walks a user through an ordered list of configured activities. "+
			"Use sequencer.open to start a session, sequencer.set to provide a required object, "+
			"sequencer.next / sequencer.previous / sequencer.goto to move, sequencer.validate to see what is missing, "+
			"and sequencer.status, sequencer.activities, sequencer.history and sequencer.list to inspect."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin
// closes. Session events are relayed to the client that opened the session.
func (s *SequencerServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.hub != nil {
		events, unsubscribe, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
		if err != nil {
			return err
		}
		defer unsubscribe()
		go s.notifier.Relay(ctx, events, s.logger)
	}

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *SequencerServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions exposes the session-to-client mapping used for notifications.
func (s *SequencerServer) Sessions() *SessionRegistry {
	return s.sessions
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *SequencerServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: openTool(), Handler: s.handleOpen},
		{Tool: nextTool(), Handler: s.handleNext},
		{Tool: previousTool(), Handler: s.handlePrevious},
		{Tool: gotoTool(), Handler: s.handleGoTo},
		{Tool: setTool(), Handler: s.handleSet},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: resetTool(), Handler: s.handleReset},
		{Tool: rollbackTool(), Handler: s.handleRollback},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: activitiesTool(), Handler: s.handleActivities},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: listTool(), Handler: s.handleList},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func sessionIDParam() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session"))
}

func openTool() mcp.Tool {
	return mcp.NewTool("sequencer.open",
		mcp.WithDescription("Open a session over an ordered list of activity configurations"),
		mcp.WithArray("activity_ids", mcp.Required(), mcp.WithStringItems(),
			mcp.Description("Configuration IDs of the activities, in order")),
		mcp.WithObject("objects", mcp.Description("Initial selection: requirement name to object ({type, id, value})")),
	)
}

func nextTool() mcp.Tool {
	return mcp.NewTool("sequencer.next",
		mcp.WithDescription("Validate the current activity and move to the next one"),
		sessionIDParam(),
	)
}

func previousTool() mcp.Tool {
	return mcp.NewTool("sequencer.previous",
		mcp.WithDescription("Move back one activity"),
		sessionIDParam(),
	)
}

func gotoTool() mcp.Tool {
	return mcp.NewTool("sequencer.goto",
		mcp.WithDescription("Move to the activity at a given index"),
		sessionIDParam(),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based activity index")),
	)
}

func setTool() mcp.Tool {
	return mcp.NewTool("sequencer.set",
		mcp.WithDescription("Bind an object to a requirement of the current activity"),
		sessionIDParam(),
		mcp.WithString("name", mcp.Required(), mcp.Description("Requirement name")),
		mcp.WithObject("object", mcp.Required(), mcp.Description("Object as {type, id, value}")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("sequencer.validate",
		mcp.WithDescription("Run every validator of the current activity and report the verdicts"),
		sessionIDParam(),
	)
}

func resetTool() mcp.Tool {
	return mcp.NewTool("sequencer.reset",
		mcp.WithDescription("Restart the session in place: created objects get default contents, built activities are kept"),
		sessionIDParam(),
	)
}

func rollbackTool() mcp.Tool {
	return mcp.NewTool("sequencer.rollback",
		mcp.WithDescription("Remove the activities from an index onwards"),
		sessionIDParam(),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("First activity index to remove (at least 1)")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("sequencer.status",
		mcp.WithDescription("Get the position and state of a session"),
		sessionIDParam(),
	)
}

func activitiesTool() mcp.Tool {
	return mcp.NewTool("sequencer.activities",
		mcp.WithDescription("List the built activities of a session with their data"),
		sessionIDParam(),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("sequencer.history",
		mcp.WithDescription("Replay the event log of a session"),
		sessionIDParam(),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool("sequencer.list",
		mcp.WithDescription("List loaded and stored sessions"),
		mcp.WithString("status",
			mcp.Enum("pending", "active", "completed"),
			mcp.Description("Only sessions in this status"),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum stored sessions to return")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("sequencer.diagram",
		mcp.WithDescription("Render the progress of a session as ASCII art, Mermaid flowchart syntax, or a PNG image"),
		sessionIDParam(),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (PNG)"),
		),
	)
}
