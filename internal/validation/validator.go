// Package validation implements the three-tier validator pipeline: pre-build
// checks on a user selection, activity checks on a materialized activity, and
// object checks on individual data objects.
package validation

import (
	"github.com/rendis/sequencer/internal/activity"
	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/pkg/schema"
)

// Role selects the validation tier a validator serves.
type Role string

const (
	RolePreBuild Role = "pre_build"
	RoleActivity Role = "activity"
	RoleObject   Role = "object"
)

// Selection maps requirement names to the objects a user has chosen for an
// activity that is about to be built. A nil entry counts as no selection.
type Selection map[string]data.Object

// Validator is implemented by every validator. The pipeline reads Role and
// calls only the matching method; embed Unsupported to satisfy the others.
type Validator interface {
	Name() string
	Role() Role
	ValidatePreBuild(info schema.ActivityInfo, sel Selection) schema.Verdict
	ValidateActivity(info schema.ActivityInfo, act *activity.Activity) schema.Verdict
	ValidateObject(obj data.Object) schema.Verdict
}

// Configurable validators derive a configured instance from the per-reference
// config carried by an activity definition.
type Configurable interface {
	WithConfig(cfg map[string]any) (Validator, error)
}

// Unsupported provides failing implementations for the roles a validator does
// not serve.
type Unsupported struct {
	name string
}

func (u Unsupported) ValidatePreBuild(schema.ActivityInfo, Selection) schema.Verdict {
	return schema.Fail("validator %q does not validate selections", u.name)
}

func (u Unsupported) ValidateActivity(schema.ActivityInfo, *activity.Activity) schema.Verdict {
	return schema.Fail("validator %q does not validate activities", u.name)
}

func (u Unsupported) ValidateObject(data.Object) schema.Verdict {
	return schema.Fail("validator %q does not validate objects", u.name)
}

// Dispatch runs v in its own role. Inputs that do not apply to the role are
// ignored.
func Dispatch(v Validator, info schema.ActivityInfo, sel Selection, act *activity.Activity, obj data.Object) schema.Verdict {
	switch v.Role() {
	case RolePreBuild:
		return v.ValidatePreBuild(info, sel)
	case RoleActivity:
		return v.ValidateActivity(info, act)
	case RoleObject:
		return v.ValidateObject(obj)
	default:
		return schema.Fail("validator %q has unknown role %q", v.Name(), v.Role())
	}
}
