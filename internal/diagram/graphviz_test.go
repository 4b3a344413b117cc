package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPNG(t *testing.T, png []byte) {
	t.Helper()
	require.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestRenderImage(t *testing.T) {
	png, err := RenderImage(context.Background(), Build("Segmentation", StepsFor(ids, 1, 2, false)))
	require.NoError(t, err)
	assertPNG(t, png)
}

func TestRenderImageCompleted(t *testing.T) {
	png, err := RenderImage(context.Background(), Build("", StepsFor(ids, 2, 3, true)))
	require.NoError(t, err)
	assertPNG(t, png)
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), Build("Segmentation", StepsFor(ids, 0, 1, false)))
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "Segmentation")
}
