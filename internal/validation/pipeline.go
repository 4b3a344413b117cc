package validation

import (
	"log/slog"

	"github.com/rendis/sequencer/internal/activity"
	"github.com/rendis/sequencer/internal/metrics"
	"github.com/rendis/sequencer/pkg/schema"
)

// Validators every pipeline runs, when the catalog has them.
const (
	DefaultPreBuild = "cardinality"
	DefaultActivity = "completeness"
)

// Result is one verdict produced while reporting on an activity.
type Result struct {
	Validator   string         `json:"validator"`
	Role        Role           `json:"role"`
	Requirement string         `json:"requirement,omitempty"`
	Verdict     schema.Verdict `json:"verdict"`
}

// Pipeline runs the validators an activity definition references, grouped
// by role.
type Pipeline struct {
	catalog *Catalog
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

func WithMetrics(m *metrics.Recorder) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(catalog *Catalog, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		catalog: catalog,
		logger:  slog.Default().With("component", "validation"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Catalog returns the catalog validators are resolved from.
func (p *Pipeline) Catalog() *Catalog { return p.catalog }

// ValidatePreBuild checks a selection before the activity is built.
func (p *Pipeline) ValidatePreBuild(info schema.ActivityInfo, sel Selection) schema.Verdict {
	if failed := p.preBuild(info, sel, true); len(failed) > 0 {
		return failed[0].Verdict
	}
	return schema.Pass()
}

// ValidateActivity checks a materialized activity.
func (p *Pipeline) ValidateActivity(info schema.ActivityInfo, act *activity.Activity) schema.Verdict {
	if failed := p.activity(info, act, true); len(failed) > 0 {
		return failed[0].Verdict
	}
	return schema.Pass()
}

// ValidateObjects runs the object validators bound to the activity's
// requirements. Unbound requirements are skipped.
func (p *Pipeline) ValidateObjects(info schema.ActivityInfo, act *activity.Activity) schema.Verdict {
	if failed := p.objects(info, act, true); len(failed) > 0 {
		return failed[0].Verdict
	}
	return schema.Pass()
}

// Report runs every applicable validator without stopping at the first
// failure. sel may be nil to skip the pre-build tier.
func (p *Pipeline) Report(info schema.ActivityInfo, sel Selection, act *activity.Activity) []Result {
	var out []Result
	if sel != nil {
		out = append(out, p.preBuild(info, sel, false)...)
	}
	if act != nil {
		out = append(out, p.activity(info, act, false)...)
		out = append(out, p.objects(info, act, false)...)
	}
	return out
}

// The tier helpers return failures only when failFast is set, and every
// verdict otherwise.

func (p *Pipeline) preBuild(info schema.ActivityInfo, sel Selection, failFast bool) []Result {
	return p.run(RolePreBuild, DefaultPreBuild, info, failFast, func(v Validator) schema.Verdict {
		return v.ValidatePreBuild(info, sel)
	})
}

func (p *Pipeline) activity(info schema.ActivityInfo, act *activity.Activity, failFast bool) []Result {
	return p.run(RoleActivity, DefaultActivity, info, failFast, func(v Validator) schema.Verdict {
		return v.ValidateActivity(info, act)
	})
}

func (p *Pipeline) run(role Role, def string, info schema.ActivityInfo, failFast bool, call func(Validator) schema.Verdict) []Result {
	var out []Result

	refs := make([]schema.ValidatorRef, 0, len(info.Validators)+1)
	if p.catalog.Has(def) {
		refs = append(refs, schema.ValidatorRef{Name: def})
	}
	for _, ref := range info.Validators {
		if r, ok := p.catalog.RoleOf(ref.Name); ok && r == role && ref.Name != def {
			refs = append(refs, ref)
		}
	}

	for _, ref := range refs {
		verdict := p.resolveAndCall(ref, call)
		res := Result{Validator: ref.Name, Role: role, Verdict: verdict}
		if !verdict.Valid {
			p.fail(info, res)
			if failFast {
				return []Result{res}
			}
		}
		if !failFast {
			out = append(out, res)
		}
	}
	return out
}

func (p *Pipeline) objects(info schema.ActivityInfo, act *activity.Activity, failFast bool) []Result {
	var out []Result

	check := func(ref schema.ValidatorRef, requirement string) bool {
		obj, bound := act.Get(requirement)
		if !bound || obj == nil {
			return true
		}
		verdict := p.resolveAndCall(ref, func(v Validator) schema.Verdict {
			return Dispatch(v, info, nil, act, obj)
		})
		res := Result{Validator: ref.Name, Role: RoleObject, Requirement: requirement, Verdict: verdict}
		if !verdict.Valid {
			p.fail(info, res)
			if failFast {
				out = []Result{res}
				return false
			}
		}
		if !failFast {
			out = append(out, res)
		}
		return true
	}

	for _, req := range info.Requirements {
		if req.Validator == "" {
			continue
		}
		if !check(schema.ValidatorRef{Name: req.Validator}, req.Name) {
			return out
		}
	}

	for _, ref := range info.Validators {
		if r, ok := p.catalog.RoleOf(ref.Name); !ok || r != RoleObject {
			continue
		}
		targets := act.Keys()
		if ref.Requirement != "" {
			targets = []string{ref.Requirement}
		}
		for _, name := range targets {
			if !check(ref, name) {
				return out
			}
		}
	}
	return out
}

func (p *Pipeline) resolveAndCall(ref schema.ValidatorRef, call func(Validator) schema.Verdict) schema.Verdict {
	v, err := p.catalog.Resolve(ref)
	if err != nil {
		return schema.Fail("%s", err.Error())
	}
	return call(v)
}

func (p *Pipeline) fail(info schema.ActivityInfo, res Result) {
	p.metrics.ValidationFailed(string(res.Role))
	p.logger.Debug("validator rejected",
		"activity", info.ID,
		"validator", res.Validator,
		"role", string(res.Role),
		"requirement", res.Requirement,
		"reason", res.Verdict.Reason,
	)
}
