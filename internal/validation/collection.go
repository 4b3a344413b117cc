package validation

import (
	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/pkg/schema"
)

// eachElement validates every element of a homogeneous collection, failing
// fast on the first invalid one. ok is false when obj is not a collection.
func eachElement(obj data.Object, check func(data.Object) schema.Verdict) (v schema.Verdict, ok bool) {
	c, isContainer := obj.(data.Container)
	if !isContainer {
		return schema.Verdict{}, false
	}

	var elems []data.Element
	_ = data.ReadGuard(obj, func() error {
		elems = c.Elements()
		return nil
	})
	if len(elems) == 0 {
		return schema.Fail("collection is empty"), true
	}

	for _, e := range elems {
		if e.Object == nil {
			return schema.Fail("element %s is missing", e.Label), true
		}
		if v := check(e.Object); !v.Valid {
			return schema.Fail("element %s: %s", e.Label, v.Reason), true
		}
	}
	return schema.Pass(), true
}

// elementObjects returns the elements of a collection in order.
func elementObjects(c data.Container) []data.Object {
	elems := c.Elements()
	out := make([]data.Object, 0, len(elems))
	for _, e := range elems {
		out = append(out, e.Object)
	}
	return out
}

// occurrences counts how many objects a selection entry stands for.
func occurrences(obj data.Object) int {
	if obj == nil {
		return 0
	}
	if c, ok := obj.(data.Container); ok {
		return c.Len()
	}
	return 1
}
