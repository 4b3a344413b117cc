package data

import (
	"fmt"

	"github.com/rendis/sequencer/pkg/schema"
)

// Type names of the built-in scalar objects.
const (
	TypeString  = "String"
	TypeInteger = "Integer"
	TypeFloat   = "Float"
	TypeBoolean = "Boolean"
)

// String holds a text value.
type String struct {
	Base
	value string
}

// NewString creates a String holding v.
func NewString(v string) *String { return &String{value: v} }

func (s *String) Type() string      { return TypeString }
func (s *String) Value() string     { return s.value }
func (s *String) SetValue(v string) { s.value = v }
func (s *String) Properties() map[string]any {
	p := baseProperties(s)
	p["value"] = s.value
	return p
}

func (s *String) ShallowCopy(src Object) error {
	o, ok := src.(*String)
	if !ok {
		return typeMismatch(s, src)
	}
	s.value = o.value
	return nil
}

func (s *String) Configure(cfg map[string]any) error {
	if v, ok := cfg["value"]; ok {
		s.value = fmt.Sprint(v)
	}
	return nil
}

// Integer holds a signed integer value.
type Integer struct {
	Base
	value int64
}

// NewInteger creates an Integer holding v.
func NewInteger(v int64) *Integer { return &Integer{value: v} }

func (i *Integer) Type() string     { return TypeInteger }
func (i *Integer) Value() int64     { return i.value }
func (i *Integer) SetValue(v int64) { i.value = v }
func (i *Integer) Properties() map[string]any {
	p := baseProperties(i)
	p["value"] = i.value
	return p
}

func (i *Integer) ShallowCopy(src Object) error {
	o, ok := src.(*Integer)
	if !ok {
		return typeMismatch(i, src)
	}
	i.value = o.value
	return nil
}

func (i *Integer) Configure(cfg map[string]any) error {
	v, ok := cfg["value"]
	if !ok {
		return nil
	}
	f, err := toFloat(v)
	if err != nil {
		return configError(i, "value", err)
	}
	i.value = int64(f)
	return nil
}

// Float holds a floating point value.
type Float struct {
	Base
	value float64
}

// NewFloat creates a Float holding v.
func NewFloat(v float64) *Float { return &Float{value: v} }

func (f *Float) Type() string       { return TypeFloat }
func (f *Float) Value() float64     { return f.value }
func (f *Float) SetValue(v float64) { f.value = v }
func (f *Float) Properties() map[string]any {
	p := baseProperties(f)
	p["value"] = f.value
	return p
}

func (f *Float) ShallowCopy(src Object) error {
	o, ok := src.(*Float)
	if !ok {
		return typeMismatch(f, src)
	}
	f.value = o.value
	return nil
}

func (f *Float) Configure(cfg map[string]any) error {
	v, ok := cfg["value"]
	if !ok {
		return nil
	}
	n, err := toFloat(v)
	if err != nil {
		return configError(f, "value", err)
	}
	f.value = n
	return nil
}

// Boolean holds a boolean value.
type Boolean struct {
	Base
	value bool
}

// NewBoolean creates a Boolean holding v.
func NewBoolean(v bool) *Boolean { return &Boolean{value: v} }

func (b *Boolean) Type() string    { return TypeBoolean }
func (b *Boolean) Value() bool     { return b.value }
func (b *Boolean) SetValue(v bool) { b.value = v }
func (b *Boolean) Properties() map[string]any {
	p := baseProperties(b)
	p["value"] = b.value
	return p
}

func (b *Boolean) ShallowCopy(src Object) error {
	o, ok := src.(*Boolean)
	if !ok {
		return typeMismatch(b, src)
	}
	b.value = o.value
	return nil
}

func (b *Boolean) Configure(cfg map[string]any) error {
	v, ok := cfg["value"]
	if !ok {
		return nil
	}
	bv, ok := v.(bool)
	if !ok {
		return configError(b, "value", fmt.Errorf("expected bool, got %T", v))
	}
	b.value = bv
	return nil
}

func typeMismatch(dst, src Object) error {
	srcType := "<nil>"
	if src != nil {
		srcType = src.Type()
	}
	return schema.NewErrorf(schema.ErrCodeUnknownType,
		"cannot copy %s into %s", srcType, dst.Type())
}

func configError(o Object, key string, err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"invalid object_config %q for %s: %s", key, o.Type(), err.Error()).WithCause(err)
}
