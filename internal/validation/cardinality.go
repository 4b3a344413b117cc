package validation

import "github.com/rendis/sequencer/pkg/schema"

// Cardinality is the default pre-build validator. It checks the selection
// against each requirement's [min_occurs, max_occurs] bounds. Requirements the
// sequencer creates on its own are exempt from the lower bound.
type Cardinality struct {
	Unsupported
}

func NewCardinality() *Cardinality {
	return &Cardinality{Unsupported: Unsupported{name: "cardinality"}}
}

func (v *Cardinality) Name() string { return "cardinality" }
func (v *Cardinality) Role() Role   { return RolePreBuild }

func (v *Cardinality) ValidatePreBuild(info schema.ActivityInfo, sel Selection) schema.Verdict {
	for _, req := range info.Requirements {
		n := occurrences(sel[req.Name])
		if !req.Creatable() && n < req.MinOccurs {
			return schema.Fail("requirement %q needs at least %d object(s), %d selected", req.Name, req.MinOccurs, n)
		}
		if req.MaxOccurs > 0 && n > req.MaxOccurs {
			return schema.Fail("requirement %q accepts at most %d object(s), %d selected", req.Name, req.MaxOccurs, n)
		}
	}
	return schema.Pass()
}

var _ Validator = (*Cardinality)(nil)
