package validation

import (
	"context"

	"github.com/rendis/sequencer/internal/activity"
	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/expressions"
	"github.com/rendis/sequencer/pkg/schema"
)

// Completeness is the default activity validator. An activity is complete
// when every mandatory requirement is bound within its cardinality and every
// declared parameter path resolves against the activity data.
type Completeness struct {
	Unsupported
	jq *expressions.GoJQEngine
}

func NewCompleteness(jq *expressions.GoJQEngine) *Completeness {
	if jq == nil {
		jq = expressions.NewGoJQEngine()
	}
	return &Completeness{Unsupported: Unsupported{name: "completeness"}, jq: jq}
}

func (v *Completeness) Name() string { return "completeness" }
func (v *Completeness) Role() Role   { return RoleActivity }

func (v *Completeness) ValidateActivity(info schema.ActivityInfo, act *activity.Activity) schema.Verdict {
	if act == nil {
		return schema.Fail("no activity")
	}
	if act.ConfigID() != info.ID {
		return schema.Fail("activity is a %q, expected %q", act.ConfigID(), info.ID)
	}

	for _, req := range info.Requirements {
		obj, bound := act.Get(req.Name)
		if !bound || obj == nil {
			if req.Optional() {
				continue
			}
			return schema.Fail("missing mandatory requirement %q", req.Name)
		}
		if _, isContainer := obj.(data.Container); !isContainer {
			continue
		}
		n := occurrences(obj)
		if !req.Optional() && n < req.MinOccurs {
			return schema.Fail("requirement %q needs at least %d object(s), has %d", req.Name, req.MinOccurs, n)
		}
		if req.MaxOccurs > 0 && n > req.MaxOccurs {
			return schema.Fail("requirement %q accepts at most %d object(s), has %d", req.Name, req.MaxOccurs, n)
		}
	}

	if len(info.Parameters) == 0 {
		return schema.Pass()
	}
	doc := act.Properties()
	for _, p := range info.Parameters {
		out, err := v.jq.Evaluate(context.Background(), p.Path, doc)
		if err != nil {
			return schema.Fail("parameter %q: %s", p.Name, err.Error())
		}
		if out == nil {
			return schema.Fail("parameter %q is unresolved (%s)", p.Name, p.Path)
		}
	}
	return schema.Pass()
}

var _ Validator = (*Completeness)(nil)
