// Package expressions evaluates validator expressions against activity data.
package expressions

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/sequencer/pkg/schema"
)

// Variables exposed to every engine.
const (
	VarObject    = "object"
	VarActivity  = "activity"
	VarSelection = "selection"
	VarParams    = "params"
)

var envVars = []string{VarObject, VarActivity, VarSelection, VarParams}

// Engine evaluates expressions. Three implementations: CEL (object checks),
// Expr (selection rules), GoJQ (path extraction).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Registry resolves engines by name.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry creates a registry holding the three built-in engines.
func NewRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	r := &Registry{engines: make(map[string]Engine)}
	r.Register(celEngine)
	r.Register(NewExprEngine())
	r.Register(NewGoJQEngine())
	return r, nil
}

// Register adds or replaces an engine under its Name.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "expression engine %q not registered", name)
	}
	return e, nil
}

// Names lists registered engines, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for n := range r.engines {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Truthy reports whether an evaluation result counts as a pass.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
