package validation

import (
	"sort"
	"sync"

	"github.com/rendis/sequencer/internal/expressions"
	"github.com/rendis/sequencer/pkg/schema"
)

// Catalog is a thread-safe registry of validators by name.
type Catalog struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

func NewCatalog() *Catalog {
	return &Catalog{validators: make(map[string]Validator)}
}

// DefaultCatalog registers the built-in validators.
func DefaultCatalog(engines *expressions.Registry) (*Catalog, error) {
	jq, err := engines.Get("jq")
	if err != nil {
		return nil, err
	}
	rules, err := engines.Get("expr")
	if err != nil {
		return nil, err
	}

	c := NewCatalog()
	for _, v := range []Validator{
		NewTagID(),
		NewImageProperties(),
		NewCardinality(),
		NewCompleteness(jq.(*expressions.GoJQEngine)),
		NewExpression(engines),
		NewSelectionRule(rules.(*expressions.ExprEngine)),
	} {
		if err := c.Register(v); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds v. Names must be unique.
func (c *Catalog) Register(v Validator) error {
	if v == nil {
		return schema.NewError(schema.ErrCodeValidation, "validator is nil")
	}
	name := v.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "validator name is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.validators[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "validator %q already registered", name)
	}
	c.validators[name] = v
	return nil
}

func (c *Catalog) Get(name string) (Validator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.validators[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "validator %q not registered", name)
	}
	return v, nil
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.validators[name]
	return ok
}

// RoleOf returns the role of a registered validator.
func (c *Catalog) RoleOf(name string) (Role, bool) {
	v, err := c.Get(name)
	if err != nil {
		return "", false
	}
	return v.Role(), true
}

// Names returns the registered names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.validators))
	for n := range c.validators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the validator a reference points to, configured with the
// reference's config when the validator accepts one.
func (c *Catalog) Resolve(ref schema.ValidatorRef) (Validator, error) {
	v, err := c.Get(ref.Name)
	if err != nil {
		return nil, err
	}
	cv, ok := v.(Configurable)
	if !ok {
		if len(ref.Config) > 0 {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "validator %q takes no config", ref.Name)
		}
		return v, nil
	}
	if len(ref.Config) == 0 {
		return v, nil
	}
	return cv.WithConfig(ref.Config)
}
