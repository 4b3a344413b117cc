package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMermaid(t *testing.T) {
	output := RenderMermaid(Build("Segmentation", StepsFor(ids, 1, 2, false)))

	assert.Contains(t, output, "graph TD")
	assert.Contains(t, output, "%% Segmentation")

	// Activities are boxes, start/end circles.
	assert.Contains(t, output, `step_0["1. load"]`)
	assert.Contains(t, output, "__start__((")
	assert.Contains(t, output, "__end__((")

	assert.Contains(t, output, "__start__ --> step_0")
	assert.Contains(t, output, "step_2 --> __end__")

	assert.Contains(t, output, "classDef current")
	assert.Contains(t, output, "class step_0 done")
	assert.Contains(t, output, "class step_1 current")
	assert.Contains(t, output, "class step_2 pending")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c_d", mermaidSafeID("a.b-c d"))
}
