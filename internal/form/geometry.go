package form

import "math"

// Space names the coordinate system a raw rectangle was measured in
type Space int

const (
	// SpaceRaster is pixels of a page rendered at the pipeline zoom factor.
	SpaceRaster Space = iota
	// SpaceNative is page units (1/72 inch), top-left origin, unclamped.
	SpaceNative
)

func (s Space) String() string {
	if s == SpaceRaster {
		return "raster"
	}
	return "native"
}

// RawRect is a rectangle as emitted by a detector. Only RasterRect and
// NativeRect implement it.
type RawRect interface {
	Space() Space
	Bounds() (x, y, width, height float64)
	sealed()
}

// RasterRect is measured in pixels of the zoomed page raster
type RasterRect struct {
	X, Y, Width, Height float64
}

// Space implements RawRect
func (RasterRect) Space() Space { return SpaceRaster }

// Bounds implements RawRect
func (r RasterRect) Bounds() (float64, float64, float64, float64) {
	return r.X, r.Y, r.Width, r.Height
}

func (RasterRect) sealed() {}

// NativeRect is in page units but has not been clamped to the page yet
type NativeRect struct {
	X, Y, Width, Height float64
}

// Space implements RawRect
func (NativeRect) Space() Space { return SpaceNative }

// Bounds implements RawRect
func (r NativeRect) Bounds() (float64, float64, float64, float64) {
	return r.X, r.Y, r.Width, r.Height
}

func (NativeRect) sealed() {}

// NewRawRect builds a raw rectangle in the given space
func NewRawRect(space Space, x, y, width, height float64) RawRect {
	if space == SpaceRaster {
		return RasterRect{X: x, Y: y, Width: width, Height: height}
	}
	return NativeRect{X: x, Y: y, Width: width, Height: height}
}

// PageRect is a reconciled rectangle: page units, top-left origin, inside
// the page. Merge and overlay work exclusively with PageRect.
type PageRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge
func (r PageRect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge
func (r PageRect) Bottom() float64 { return r.Y + r.Height }

// Area returns width times height
func (r PageRect) Area() float64 { return r.Width * r.Height }

// Valid reports whether the rectangle has finite coordinates and a
// positive size
func (r PageRect) Valid() bool {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.Width > 0 && r.Height > 0
}

// Intersection returns the overlapping area of r and o
func (r PageRect) Intersection(o PageRect) float64 {
	w := math.Min(r.Right(), o.Right()) - math.Max(r.X, o.X)
	h := math.Min(r.Bottom(), o.Bottom()) - math.Max(r.Y, o.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// OverlapRatio is the intersection area divided by the smaller of the two
// areas. A small box fully inside a large one scores 1.
func (r PageRect) OverlapRatio(o PageRect) float64 {
	minArea := math.Min(r.Area(), o.Area())
	if minArea <= 0 {
		return 0
	}
	return r.Intersection(o) / minArea
}

// Inset shrinks the rectangle by pad on every side, never below zero size
func (r PageRect) Inset(pad float64) PageRect {
	out := PageRect{X: r.X + pad, Y: r.Y + pad, Width: r.Width - 2*pad, Height: r.Height - 2*pad}
	if out.Width < 0 {
		out.Width = 0
	}
	if out.Height < 0 {
		out.Height = 0
	}
	return out
}
