package data

import (
	"sort"
	"sync"

	"github.com/rendis/sequencer/pkg/schema"
)

// Constructor builds an empty object of one type.
type Constructor func() Object

// Factory is a thread-safe registry of object constructors keyed by type name.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewFactory creates an empty Factory.
func NewFactory() *Factory {
	return &Factory{ctors: make(map[string]Constructor)}
}

// DefaultFactory returns a Factory with every built-in type registered.
func DefaultFactory() *Factory {
	f := NewFactory()
	f.MustRegister(TypeString, func() Object { return NewString("") })
	f.MustRegister(TypeInteger, func() Object { return NewInteger(0) })
	f.MustRegister(TypeFloat, func() Object { return NewFloat(0) })
	f.MustRegister(TypeBoolean, func() Object { return NewBoolean(false) })
	f.MustRegister(TypeImage, func() Object { return NewImage(nil, nil, nil) })
	f.MustRegister(TypeVector, func() Object { return NewVector() })
	f.MustRegister(TypeComposite, func() Object { return NewComposite() })
	return f
}

// Register installs a constructor. Returns an error if the type already exists.
func (f *Factory) Register(typeName string, ctor Constructor) error {
	if typeName == "" {
		return schema.NewError(schema.ErrCodeValidation, "object type name is empty")
	}
	if ctor == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "constructor for %q is nil", typeName)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.ctors[typeName]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "object type %q already registered", typeName)
	}
	f.ctors[typeName] = ctor
	return nil
}

// MustRegister panics if registration fails.
func (f *Factory) MustRegister(typeName string, ctor Constructor) {
	if err := f.Register(typeName, ctor); err != nil {
		panic(err)
	}
}

// Has reports whether typeName can be created.
func (f *Factory) Has(typeName string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ctors[typeName]
	return ok
}

// Types returns the registered type names, sorted.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.ctors))
	for t := range f.ctors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Create builds a new object of typeName and applies cfg when the object is
// Configurable. An unknown type is a configuration error.
func (f *Factory) Create(typeName string, cfg map[string]any) (Object, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[typeName]
	f.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownType, "no factory registered for object type %q", typeName)
	}

	obj := ctor()
	if len(cfg) > 0 {
		if c, ok := obj.(Configurable); ok {
			if err := c.Configure(cfg); err != nil {
				return nil, err
			}
		}
	}
	return obj, nil
}
