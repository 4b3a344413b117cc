// Package activity holds the materialized workflow steps and the ordered set
// that carries them, together with the set's change notifications.
package activity

import (
	"slices"

	"github.com/google/uuid"

	"github.com/rendis/sequencer/internal/data"
)

// Activity is one materialized step: an ordered mapping from requirement name
// to the data object bound to it.
type Activity struct {
	id          string
	configID    string
	description string
	keys        []string
	items       map[string]data.Object
}

// New creates an empty Activity instantiating the given configuration.
func New(configID, description string) *Activity {
	return &Activity{
		id:          uuid.NewString(),
		configID:    configID,
		description: description,
		items:       make(map[string]data.Object),
	}
}

// ID uniquely identifies this activity record.
func (a *Activity) ID() string { return a.id }

// SetID overrides the record id, used when restoring persisted activities.
func (a *Activity) SetID(id string) { a.id = id }

// ConfigID is the registry id of the activity configuration.
func (a *Activity) ConfigID() string { return a.configID }

func (a *Activity) SetConfigID(id string) { a.configID = id }

func (a *Activity) Description() string { return a.description }

func (a *Activity) SetDescription(d string) { a.description = d }

// Get returns the object bound to name.
func (a *Activity) Get(name string) (data.Object, bool) {
	o, ok := a.items[name]
	return o, ok
}

// Set binds obj to name. Rebinding an existing name keeps its position.
func (a *Activity) Set(name string, obj data.Object) {
	if _, exists := a.items[name]; !exists {
		a.keys = append(a.keys, name)
	}
	a.items[name] = obj
}

// Delete unbinds name.
func (a *Activity) Delete(name string) {
	if _, ok := a.items[name]; !ok {
		return
	}
	delete(a.items, name)
	a.keys = slices.DeleteFunc(a.keys, func(k string) bool { return k == name })
}

// Keys returns the bound requirement names in insertion order.
func (a *Activity) Keys() []string { return slices.Clone(a.keys) }

func (a *Activity) Len() int { return len(a.keys) }

// Properties renders the activity for expression evaluation.
func (a *Activity) Properties() map[string]any {
	bound := make(map[string]any, len(a.items))
	for _, k := range a.keys {
		if o := a.items[k]; o != nil {
			bound[k] = o.Properties()
		} else {
			bound[k] = nil
		}
	}
	return map[string]any{
		"id":          a.id,
		"config_id":   a.configID,
		"description": a.description,
		"data":        bound,
	}
}
