package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/sequencer/pkg/schema"
)

func objectData() map[string]any {
	return map[string]any{
		"object": map[string]any{
			"type":  "image",
			"size":  []any{int64(256), int64(256), int64(120)},
			"value": "x",
		},
		"activity": map[string]any{
			"config_id": "cfg.register",
			"data": map[string]any{
				"fixed":  map[string]any{"type": "image", "spacing": []any{1.0, 1.0, 2.5}},
				"moving": map[string]any{"type": "image", "spacing": []any{1.0, 1.0, 2.5}},
			},
		},
		"selection": map[string]any{"size": int64(2)},
	}
}

func TestRegistry_BuiltIns(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"cel", "expr", "jq"}, r.Names())

	_, err = r.Get("lua")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestCEL_ObjectCheck(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `object.type == "image" && size(object.size) == 3`, objectData())
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_MissingVariablesDefaultToEmptyMaps(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `size(params) == 0`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), `object.type ==`, objectData())
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))
	assert.Error(t, e.Check(`((`))
	assert.NoError(t, e.Check(`true`))
}

func TestCEL_Empty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestExpr_SelectionRule(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), `selection.size >= 1 && selection.size <= 2`, objectData())
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), `undefinedVar ?? "fallback"`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", out)
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), `1 +`, nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))
}

func TestGoJQ_PathExtraction(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), `.activity.data.fixed.spacing[2]`, objectData())
	require.NoError(t, err)
	assert.Equal(t, 2.5, out)

	all, err := e.EvaluateAll(context.Background(), `.activity.data[] | .type`, objectData())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := e.Evaluate(context.Background(), `empty`, objectData())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGoJQ_NormalizesIntegers(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), `.object.size[0] + 1`, objectData())
	require.NoError(t, err)
	assert.Equal(t, float64(257), out)
}

func TestGoJQ_EnvironmentBlocked(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), `$ENV | length`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 0, out)
}

func TestGoJQ_ParseError(t *testing.T) {
	e := NewGoJQEngine()
	_, err := e.Evaluate(context.Background(), `.[`, nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))
}

func TestEngines_ConcurrentCache(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	exprs := map[string]string{
		"cel":  `selection.size == 2`,
		"expr": `selection.size == 2`,
		"jq":   `.selection.size == 2`,
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for name, src := range exprs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e, err := r.Get(name)
				assert.NoError(t, err)
				out, err := e.Evaluate(context.Background(), src, objectData())
				assert.NoError(t, err)
				assert.True(t, Truthy(out))
			}()
		}
	}
	wg.Wait()
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0.0))
	assert.False(t, Truthy([]any{}))
	assert.True(t, Truthy(int64(1)))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy(struct{}{}))
}
