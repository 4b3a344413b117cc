package validation

import (
	"math"

	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/pkg/schema"
)

const geometryTolerance = 1e-6

// ImageProperties checks that every image of a collection shares size,
// spacing and origin.
type ImageProperties struct {
	Unsupported
}

func NewImageProperties() *ImageProperties {
	return &ImageProperties{Unsupported: Unsupported{name: "image_properties"}}
}

func (v *ImageProperties) Name() string { return "image_properties" }
func (v *ImageProperties) Role() Role   { return RoleObject }

func (v *ImageProperties) ValidateObject(obj data.Object) schema.Verdict {
	c, ok := obj.(data.Container)
	if !ok {
		if _, single := obj.(*data.Image); single {
			return schema.PassWith("nothing to compare")
		}
		return schema.Fail("expected a collection of images")
	}

	var objs []data.Object
	_ = data.ReadGuard(obj, func() error {
		objs = elementObjects(c)
		return nil
	})

	images := make([]*data.Image, 0, len(objs))
	for i, o := range objs {
		im, isImage := o.(*data.Image)
		if !isImage {
			return schema.Fail("element %d is not an image", i)
		}
		images = append(images, im)
	}
	if len(images) < 2 {
		return schema.PassWith("nothing to compare")
	}

	ref := images[0]
	for _, im := range images[1:] {
		if !equalInts(ref.Size(), im.Size()) {
			return schema.Fail("images have different sizes")
		}
	}
	for _, im := range images[1:] {
		if !equalFloats(ref.Spacing(), im.Spacing()) {
			return schema.Fail("images have different spacings")
		}
	}
	for _, im := range images[1:] {
		if !equalFloats(ref.Origin(), im.Origin()) {
			return schema.Fail("images have different origins")
		}
	}
	return schema.Pass()
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > geometryTolerance {
			return false
		}
	}
	return true
}

var _ Validator = (*ImageProperties)(nil)
