package validation

import (
	"context"

	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/expressions"
	"github.com/rendis/sequencer/pkg/schema"
)

// Expression is an object validator driven by a configured expression that
// sees the object's properties as the variable "object".
//
//	validators:
//	  - name: expression
//	    requirement: image
//	    config:
//	      expression: 'object.modality == "CT"'
//	      message: only CT images are supported
type Expression struct {
	Unsupported
	engines    *expressions.Registry
	language   string
	expression string
	message    string
}

func NewExpression(engines *expressions.Registry) *Expression {
	return &Expression{
		Unsupported: Unsupported{name: "expression"},
		engines:     engines,
		language:    "cel",
	}
}

func (v *Expression) Name() string { return "expression" }
func (v *Expression) Role() Role   { return RoleObject }

// WithConfig reads "expression", and optionally "language" and "message".
func (v *Expression) WithConfig(cfg map[string]any) (Validator, error) {
	out := *v
	if err := readConfig(cfg, "expression", &out.expression, true); err != nil {
		return nil, err
	}
	if err := readConfig(cfg, "language", &out.language, false); err != nil {
		return nil, err
	}
	if err := readConfig(cfg, "message", &out.message, false); err != nil {
		return nil, err
	}
	if _, err := v.engines.Get(out.language); err != nil {
		return nil, err
	}
	return &out, nil
}

func (v *Expression) ValidateObject(obj data.Object) schema.Verdict {
	if v.expression == "" {
		return schema.Fail("no expression configured")
	}
	if obj == nil {
		return schema.Fail("no object given")
	}

	var props map[string]any
	_ = data.ReadGuard(obj, func() error {
		props = obj.Properties()
		return nil
	})

	engine, err := v.engines.Get(v.language)
	if err != nil {
		return schema.Fail("%s", err.Error())
	}
	out, err := engine.Evaluate(context.Background(), v.expression,
		map[string]any{expressions.VarObject: props})
	if err != nil {
		return schema.Fail("%s", err.Error())
	}
	if !expressions.Truthy(out) {
		if v.message != "" {
			return schema.Fail("%s", v.message)
		}
		return schema.Fail("expression %q is not satisfied", v.expression)
	}
	return schema.Pass()
}

func readConfig(cfg map[string]any, key string, dst *string, required bool) error {
	raw, ok := cfg[key]
	if !ok {
		if required {
			return schema.NewErrorf(schema.ErrCodeValidation, "validator config requires %q", key)
		}
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "validator config %q must be a string, got %T", key, raw)
	}
	*dst = s
	return nil
}

var (
	_ Validator    = (*Expression)(nil)
	_ Configurable = (*Expression)(nil)
)
