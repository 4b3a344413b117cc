package schema

// RequirementDescriptor statically describes one named input an activity needs.
// Descriptors are loaded from the activity registry and never mutated afterwards.
type RequirementDescriptor struct {
	Name         string         `json:"name" yaml:"name"`
	Type         string         `json:"type" yaml:"type"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	MinOccurs    int            `json:"min_occurs" yaml:"min_occurs"`
	MaxOccurs    int            `json:"max_occurs" yaml:"max_occurs"`
	Create       bool           `json:"create,omitempty" yaml:"create,omitempty"`
	ObjectConfig map[string]any `json:"object_config,omitempty" yaml:"object_config,omitempty"`
	// Validator names an object validator applied to the bound object.
	Validator string `json:"validator,omitempty" yaml:"validator,omitempty"`
}

// Optional reports whether the requirement may be absent (min_occurs == 0).
func (r RequirementDescriptor) Optional() bool {
	return r.MinOccurs == 0
}

// EmptyContainer reports the "0,0" cardinality, meaning "create an empty container".
func (r RequirementDescriptor) EmptyContainer() bool {
	return r.MinOccurs == 0 && r.MaxOccurs == 0
}

// Creatable reports whether the sequencer mints a new object when none is bound.
func (r RequirementDescriptor) Creatable() bool {
	return r.Create || r.EmptyContainer()
}

// ValidatorRef references a named validator from the validation catalog.
type ValidatorRef struct {
	Name string `json:"name" yaml:"name"`
	// Requirement restricts an object validator to one requirement's object.
	Requirement string `json:"requirement,omitempty" yaml:"requirement,omitempty"`
	// Config is forwarded to configurable validators (expression, selection rule).
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// ParameterRef names a downstream parameter that must be resolvable from the
// activity data once the activity is materialized. Path is a jq expression
// evaluated over the activity's data rendered as JSON.
type ParameterRef struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// ActivityInfo is the static description of one activity configuration.
type ActivityInfo struct {
	ID           string                  `json:"id" yaml:"id"`
	Title        string                  `json:"title,omitempty" yaml:"title,omitempty"`
	Description  string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Requirements []RequirementDescriptor `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	Validators   []ValidatorRef          `json:"validators,omitempty" yaml:"validators,omitempty"`
	Parameters   []ParameterRef          `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Requirement returns the descriptor with the given name.
func (a ActivityInfo) Requirement(name string) (RequirementDescriptor, bool) {
	for _, r := range a.Requirements {
		if r.Name == name {
			return r, true
		}
	}
	return RequirementDescriptor{}, false
}

// ActivityDocument is the on-disk format for a batch of activity definitions.
type ActivityDocument struct {
	Activities []ActivityInfo `json:"activities" yaml:"activities"`
}
