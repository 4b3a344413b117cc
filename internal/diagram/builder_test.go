package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ids = []string{"load", "annotate", "review"}

func statuses(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Status
	}
	return out
}

func TestStepsFor(t *testing.T) {
	tests := []struct {
		name      string
		current   int
		built     int
		completed bool
		want      []string
	}{
		{"pending", -1, 0, false, []string{StatusPending, StatusPending, StatusPending}},
		{"first", 0, 1, false, []string{StatusCurrent, StatusPending, StatusPending}},
		{"middle", 1, 2, false, []string{StatusDone, StatusCurrent, StatusPending}},
		{"went back", 0, 3, false, []string{StatusCurrent, StatusBuilt, StatusBuilt}},
		{"completed", 2, 3, true, []string{StatusDone, StatusDone, StatusDone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StepsFor(ids, tt.current, tt.built, tt.completed)
			assert.Equal(t, tt.want, statuses(got))
			assert.Equal(t, "annotate", got[1].ConfigID)
		})
	}
}

func TestBuildLinearChain(t *testing.T) {
	model := Build("Flow", StepsFor(ids, 1, 2, false))

	require.Len(t, model.Nodes, 5)
	assert.Equal(t, NodeKindStart, model.Nodes[0].Kind)
	assert.Equal(t, NodeKindEnd, model.Nodes[4].Kind)
	assert.Equal(t, "2. annotate", model.Nodes[2].Label)
	assert.Equal(t, StatusCurrent, model.Nodes[2].Status.Status)

	require.Len(t, model.Edges, 4)
	assert.Equal(t, Edge{From: "__start__", To: "step_0"}, model.Edges[0])
	assert.Equal(t, Edge{From: "step_2", To: "__end__"}, model.Edges[3])
	assert.Len(t, model.Levels, 5)
}

func TestBuildRepeatedConfig(t *testing.T) {
	model := Build("", []Step{{ConfigID: "review"}, {ConfigID: "review", Label: "Second look"}})

	require.Len(t, model.Nodes, 4)
	assert.NotEqual(t, model.Nodes[1].ID, model.Nodes[2].ID)
	assert.Equal(t, "2. Second look", model.Nodes[2].Label)
	assert.Nil(t, model.Nodes[1].Status)
}

func TestBuildEmpty(t *testing.T) {
	model := Build("Empty", nil)
	require.Len(t, model.Nodes, 2)
	assert.Equal(t, []Edge{{From: "__start__", To: "__end__"}}, model.Edges)
}
