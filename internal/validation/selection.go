package validation

import (
	"context"

	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/expressions"
	"github.com/rendis/sequencer/pkg/schema"
)

// SelectionRule is a pre-build validator evaluating an expr rule over the
// selection. Each requirement appears under "selection" as
// {count, type, object}; the definition appears under "activity".
type SelectionRule struct {
	Unsupported
	engine  *expressions.ExprEngine
	rule    string
	message string
}

func NewSelectionRule(engine *expressions.ExprEngine) *SelectionRule {
	if engine == nil {
		engine = expressions.NewExprEngine()
	}
	return &SelectionRule{Unsupported: Unsupported{name: "selection_rule"}, engine: engine}
}

func (v *SelectionRule) Name() string { return "selection_rule" }
func (v *SelectionRule) Role() Role   { return RolePreBuild }

// WithConfig reads "rule" and optionally "message".
func (v *SelectionRule) WithConfig(cfg map[string]any) (Validator, error) {
	out := *v
	if err := readConfig(cfg, "rule", &out.rule, true); err != nil {
		return nil, err
	}
	if err := readConfig(cfg, "message", &out.message, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (v *SelectionRule) ValidatePreBuild(info schema.ActivityInfo, sel Selection) schema.Verdict {
	if v.rule == "" {
		return schema.Fail("no selection rule configured")
	}

	env := map[string]any{
		expressions.VarSelection: selectionView(info, sel),
		expressions.VarActivity: map[string]any{
			"id":    info.ID,
			"title": info.Title,
		},
	}
	out, err := v.engine.Evaluate(context.Background(), v.rule, env)
	if err != nil {
		return schema.Fail("%s", err.Error())
	}
	if !expressions.Truthy(out) {
		if v.message != "" {
			return schema.Fail("%s", v.message)
		}
		return schema.Fail("selection rule %q is not satisfied", v.rule)
	}
	return schema.Pass()
}

// selectionView renders every declared requirement, selected or not, so rules
// can test counts without guarding against missing keys.
func selectionView(info schema.ActivityInfo, sel Selection) map[string]any {
	view := make(map[string]any, len(info.Requirements))
	for _, req := range info.Requirements {
		entry := map[string]any{
			"count":  occurrences(sel[req.Name]),
			"type":   req.Type,
			"object": nil,
		}
		if obj := sel[req.Name]; obj != nil {
			_ = data.ReadGuard(obj, func() error {
				entry["object"] = obj.Properties()
				return nil
			})
		}
		view[req.Name] = entry
	}
	return view
}

var (
	_ Validator    = (*SelectionRule)(nil)
	_ Configurable = (*SelectionRule)(nil)
)
