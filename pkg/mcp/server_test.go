package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSequencerServer(t *testing.T) {
	s := NewSequencerServer(ServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.notifier)
}

func TestToolRegistration(t *testing.T) {
	s := NewSequencerServer(ServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 13)

	expectedTools := []string{
		"sequencer.open",
		"sequencer.next",
		"sequencer.previous",
		"sequencer.goto",
		"sequencer.set",
		"sequencer.validate",
		"sequencer.reset",
		"sequencer.rollback",
		"sequencer.status",
		"sequencer.activities",
		"sequencer.history",
		"sequencer.list",
		"sequencer.diagram",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"open", "sequencer.open", "Open a session over an ordered list of activity configurations"},
		{"next", "sequencer.next", "Validate the current activity and move to the next one"},
		{"set", "sequencer.set", "Bind an object to a requirement of the current activity"},
		{"validate", "sequencer.validate", "Run every validator of the current activity and report the verdicts"},
		{"list", "sequencer.list", "List loaded and stored sessions"},
	}

	s := NewSequencerServer(ServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
