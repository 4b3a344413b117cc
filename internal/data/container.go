package data

import "slices"

// Type names of the built-in containers.
const (
	TypeVector    = "Vector"
	TypeComposite = "Composite"
)

// Container is implemented by homogeneous collections of objects.
type Container interface {
	Object
	Len() int
	// Elements returns the children in iteration order, paired with a label
	// (index for vectors, key for composites).
	Elements() []Element
}

// Element is one child of a Container.
type Element struct {
	Label  string
	Object Object
}

// Vector is an ordered list of objects.
type Vector struct {
	Base
	items []Object
}

// NewVector creates a Vector holding the given objects.
func NewVector(items ...Object) *Vector {
	return &Vector{items: slices.Clone(items)}
}

func (v *Vector) Type() string       { return TypeVector }
func (v *Vector) Len() int           { return len(v.items) }
func (v *Vector) At(i int) Object    { return v.items[i] }
func (v *Vector) Append(o ...Object) { v.items = append(v.items, o...) }
func (v *Vector) Items() []Object    { return slices.Clone(v.items) }
func (v *Vector) Clear()             { v.items = nil }

func (v *Vector) Elements() []Element {
	out := make([]Element, len(v.items))
	for i, o := range v.items {
		out[i] = Element{Label: itoa(i), Object: o}
	}
	return out
}

func (v *Vector) ShallowCopy(src Object) error {
	o, ok := src.(*Vector)
	if !ok {
		return typeMismatch(v, src)
	}
	v.items = slices.Clone(o.items)
	return nil
}

func (v *Vector) Properties() map[string]any {
	p := baseProperties(v)
	items := make([]any, len(v.items))
	for i, o := range v.items {
		if o != nil {
			items[i] = o.Properties()
		}
	}
	p["size"] = int64(len(v.items))
	p["items"] = items
	return p
}

// Composite is a keyed collection of objects that remembers insertion order.
type Composite struct {
	Base
	keys  []string
	items map[string]Object
}

// NewComposite creates an empty Composite.
func NewComposite() *Composite {
	return &Composite{items: make(map[string]Object)}
}

func (c *Composite) Type() string { return TypeComposite }
func (c *Composite) Len() int     { return len(c.keys) }

// Get returns the object stored under key.
func (c *Composite) Get(key string) (Object, bool) {
	o, ok := c.items[key]
	return o, ok
}

// Set inserts or overwrites key. Overwriting keeps the original position.
func (c *Composite) Set(key string, o Object) {
	if c.items == nil {
		c.items = make(map[string]Object)
	}
	if _, exists := c.items[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.items[key] = o
}

// Delete removes key if present.
func (c *Composite) Delete(key string) {
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	c.keys = slices.DeleteFunc(c.keys, func(k string) bool { return k == key })
}

// Keys returns the keys in insertion order.
func (c *Composite) Keys() []string { return slices.Clone(c.keys) }

func (c *Composite) Clear() {
	c.keys = nil
	c.items = make(map[string]Object)
}

func (c *Composite) Elements() []Element {
	out := make([]Element, len(c.keys))
	for i, k := range c.keys {
		out[i] = Element{Label: k, Object: c.items[k]}
	}
	return out
}

func (c *Composite) ShallowCopy(src Object) error {
	o, ok := src.(*Composite)
	if !ok {
		return typeMismatch(c, src)
	}
	c.keys = slices.Clone(o.keys)
	c.items = make(map[string]Object, len(o.items))
	for k, v := range o.items {
		c.items[k] = v
	}
	return nil
}

func (c *Composite) Properties() map[string]any {
	p := baseProperties(c)
	items := make(map[string]any, len(c.items))
	for k, o := range c.items {
		if o != nil {
			items[k] = o.Properties()
		}
	}
	p["size"] = int64(len(c.keys))
	p["items"] = items
	return p
}
