package data

import "slices"

// TypeImage is the type name of Image objects.
const TypeImage = "Image"

// Image is an image-like object described by its geometry. Pixel buffers are
// out of scope; only the properties validators compare are kept.
type Image struct {
	Base
	size     []int
	spacing  []float64
	origin   []float64
	modality string
}

// NewImage creates an Image with the given geometry.
func NewImage(size []int, spacing, origin []float64) *Image {
	return &Image{
		size:    slices.Clone(size),
		spacing: slices.Clone(spacing),
		origin:  slices.Clone(origin),
	}
}

func (im *Image) Type() string { return TypeImage }

// Size returns the number of voxels along each axis.
func (im *Image) Size() []int { return slices.Clone(im.size) }

// Spacing returns the voxel spacing along each axis.
func (im *Image) Spacing() []float64 { return slices.Clone(im.spacing) }

// Origin returns the position of the first voxel.
func (im *Image) Origin() []float64 { return slices.Clone(im.origin) }

func (im *Image) Modality() string { return im.modality }

func (im *Image) SetModality(m string) { im.modality = m }

// SetGeometry replaces size, spacing and origin at once.
func (im *Image) SetGeometry(size []int, spacing, origin []float64) {
	im.size = slices.Clone(size)
	im.spacing = slices.Clone(spacing)
	im.origin = slices.Clone(origin)
}

func (im *Image) ShallowCopy(src Object) error {
	o, ok := src.(*Image)
	if !ok {
		return typeMismatch(im, src)
	}
	im.SetGeometry(o.size, o.spacing, o.origin)
	im.modality = o.modality
	return nil
}

func (im *Image) Configure(cfg map[string]any) error {
	if v, ok := cfg["size"]; ok {
		size, err := toInts(v)
		if err != nil {
			return configError(im, "size", err)
		}
		im.size = size
	}
	if v, ok := cfg["spacing"]; ok {
		spacing, err := toFloats(v)
		if err != nil {
			return configError(im, "spacing", err)
		}
		im.spacing = spacing
	}
	if v, ok := cfg["origin"]; ok {
		origin, err := toFloats(v)
		if err != nil {
			return configError(im, "origin", err)
		}
		im.origin = origin
	}
	if v, ok := cfg["modality"].(string); ok {
		im.modality = v
	}
	return nil
}

func (im *Image) Properties() map[string]any {
	p := baseProperties(im)
	size := make([]any, len(im.size))
	for i, s := range im.size {
		size[i] = int64(s)
	}
	p["size"] = size
	p["spacing"] = floatsToAny(im.spacing)
	p["origin"] = floatsToAny(im.origin)
	p["modality"] = im.modality
	return p
}

func floatsToAny(fs []float64) []any {
	out := make([]any, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}
