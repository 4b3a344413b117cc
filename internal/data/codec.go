package data

import (
	"encoding/json"
	"fmt"

	"github.com/rendis/sequencer/pkg/schema"
)

// envelope is the persisted representation of one object.
type envelope struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

type imageValue struct {
	Size     []int     `json:"size,omitempty"`
	Spacing  []float64 `json:"spacing,omitempty"`
	Origin   []float64 `json:"origin,omitempty"`
	Modality string    `json:"modality,omitempty"`
}

type compositeEntry struct {
	Key    string          `json:"key"`
	Object json.RawMessage `json:"object"`
}

// Encode renders obj, including container children, as JSON.
func Encode(obj Object) (json.RawMessage, error) {
	if obj == nil {
		return json.RawMessage("null"), nil
	}
	obj.RLock()
	defer obj.RUnlock()

	var (
		value any
		err   error
	)
	switch o := obj.(type) {
	case *String:
		value = o.value
	case *Integer:
		value = o.value
	case *Float:
		value = o.value
	case *Boolean:
		value = o.value
	case *Image:
		value = imageValue{Size: o.size, Spacing: o.spacing, Origin: o.origin, Modality: o.modality}
	case *Vector:
		items := make([]json.RawMessage, len(o.items))
		for i, child := range o.items {
			if items[i], err = Encode(child); err != nil {
				return nil, err
			}
		}
		value = items
	case *Composite:
		entries := make([]compositeEntry, len(o.keys))
		for i, k := range o.keys {
			raw, err := Encode(o.items[k])
			if err != nil {
				return nil, err
			}
			entries[i] = compositeEntry{Key: k, Object: raw}
		}
		value = entries
	default:
		return nil, schema.NewErrorf(schema.ErrCodeUnknownType, "object type %q has no codec", obj.Type())
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s value: %w", obj.Type(), err)
	}
	return json.Marshal(envelope{Type: obj.Type(), ID: obj.ID(), Value: raw})
}

// Decode rebuilds an object previously produced by Encode.
func (f *Factory) Decode(raw json.RawMessage) (Object, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal object envelope: %w", err)
	}

	obj, err := f.Create(env.Type, nil)
	if err != nil {
		return nil, err
	}
	obj.SetID(env.ID)

	switch o := obj.(type) {
	case *String:
		err = json.Unmarshal(env.Value, &o.value)
	case *Integer:
		err = json.Unmarshal(env.Value, &o.value)
	case *Float:
		err = json.Unmarshal(env.Value, &o.value)
	case *Boolean:
		err = json.Unmarshal(env.Value, &o.value)
	case *Image:
		var v imageValue
		if err = json.Unmarshal(env.Value, &v); err == nil {
			o.SetGeometry(v.Size, v.Spacing, v.Origin)
			o.modality = v.Modality
		}
	case *Vector:
		var items []json.RawMessage
		if err = json.Unmarshal(env.Value, &items); err == nil {
			for _, item := range items {
				child, cerr := f.Decode(item)
				if cerr != nil {
					return nil, cerr
				}
				o.Append(child)
			}
		}
	case *Composite:
		var entries []compositeEntry
		if err = json.Unmarshal(env.Value, &entries); err == nil {
			for _, e := range entries {
				child, cerr := f.Decode(e.Object)
				if cerr != nil {
					return nil, cerr
				}
				o.Set(e.Key, child)
			}
		}
	default:
		return nil, schema.NewErrorf(schema.ErrCodeUnknownType, "object type %q has no codec", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s value: %w", env.Type, err)
	}
	return obj, nil
}
