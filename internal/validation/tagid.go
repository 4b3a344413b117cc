package validation

import (
	"errors"
	"strconv"
	"strings"

	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/pkg/schema"
)

// Tag ids address a 10-bit tracker channel.
const (
	minTagID = 0
	maxTagID = 1023
)

// TagID accepts a String of comma or space separated integers in [0, 1023],
// or a collection of such Strings.
type TagID struct {
	Unsupported
}

func NewTagID() *TagID {
	return &TagID{Unsupported: Unsupported{name: "tag_id"}}
}

func (v *TagID) Name() string { return "tag_id" }
func (v *TagID) Role() Role   { return RoleObject }

func (v *TagID) ValidateObject(obj data.Object) schema.Verdict {
	if obj == nil {
		return schema.Fail("no tag id given")
	}
	if verdict, ok := eachElement(obj, v.validateString); ok {
		return verdict
	}
	return v.validateString(obj)
}

func (v *TagID) validateString(obj data.Object) schema.Verdict {
	s, ok := obj.(*data.String)
	if !ok {
		return schema.Fail("expected a string, got %s", obj.Type())
	}

	var value string
	_ = data.ReadGuard(s, func() error {
		value = s.Value()
		return nil
	})

	tokens := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(tokens) == 0 {
		return schema.Fail("tag id list is empty")
	}

	for _, tok := range tokens {
		// Digits only: no sign prefix is accepted.
		id, err := strconv.ParseUint(tok, 10, 64)
		switch {
		case errors.Is(err, strconv.ErrRange):
			return schema.Fail("tag id %s is outside [%d, %d]", tok, minTagID, maxTagID)
		case err != nil:
			return schema.Fail("%q is not an unsigned integer", tok)
		case id > maxTagID:
			return schema.Fail("tag id %d is outside [%d, %d]", id, minTagID, maxTagID)
		}
	}
	return schema.Pass()
}

var _ Validator = (*TagID)(nil)
