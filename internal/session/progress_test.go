package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/sequencer/internal/diagram"
)

func TestProgress(t *testing.T) {
	s := newSession(t)
	ctx := context.Background()

	for _, step := range s.Progress() {
		assert.Equal(t, diagram.StatusPending, step.Status)
		assert.Empty(t, step.ActivityID)
	}

	openLabeled(t, s)
	_, err := s.Next(ctx)
	require.NoError(t, err)

	steps := s.Progress()
	require.Len(t, steps, 3)
	assert.Equal(t, diagram.StatusDone, steps[0].Status)
	assert.Equal(t, diagram.StatusCurrent, steps[1].Status)
	assert.Equal(t, diagram.StatusPending, steps[2].Status)
	assert.NotEmpty(t, steps[1].ActivityID)
	assert.Empty(t, steps[2].ActivityID)

	_, err = s.Previous(ctx)
	require.NoError(t, err)
	assert.Equal(t, diagram.StatusBuilt, s.Progress()[1].Status)

	model := s.Diagram()
	assert.Contains(t, model.Title, s.ID())
	assert.Len(t, model.Nodes, 5)
}
