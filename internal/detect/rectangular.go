package detect

import (
	"context"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// RectBounds are the shape limits for a drawn input box, in raster pixels
// at referenceZoom. Width and height ratios are fractions of the page.
type RectBounds struct {
	MinArea, MaxArea     float64
	MinWidth, MinHeight  float64
	MaxWidthRatio        float64
	MaxHeightRatio       float64
	// near-square boxes are checkboxes or table cells, not text inputs
	MinAspect, MaxAspect float64
	BorderPx             float64
	// GapPx is the longest break in an outline that is bridged
	GapPx                float64
}

// DefaultRectBounds accepts single-line and short multi-line input boxes
func DefaultRectBounds() RectBounds {
	return RectBounds{
		MinArea:        3000,
		MaxArea:        100000,
		MinWidth:       70,
		MinHeight:      24,
		MaxWidthRatio:  0.8,
		MaxHeightRatio: 0.3,
		MinAspect:      2.2,
		MaxAspect:      25,
		BorderPx:       4,
		GapPx:          4,
	}
}

// Rectangular finds closed outlines whose inside is blank. Shape alone
// matches paragraphs and tables too, so the blank test is mandatory.
type Rectangular struct {
	opts Options
}

// Method implements Strategy
func (*Rectangular) Method() form.DetectionMethod { return form.MethodRectangular }

// NeedsRaster implements Strategy
func (*Rectangular) NeedsRaster() bool { return true }

// Detect implements Strategy
func (r *Rectangular) Detect(ctx context.Context, in *Input) ([]form.Candidate, error) {
	if in.Raster == nil {
		return nil, nil
	}
	s := in.scale()
	b := DefaultRectBounds()
	img := in.Raster
	pageW, pageH := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	words := wordsIn(in, form.SpaceRaster)

	// scanned outlines break up; close small gaps so one box stays one component
	gap := max(2, scaled(b.GapPx, s))
	ink := darkMask(img, otsuLevel(img)).closeH(gap).closeV(gap)

	out := make([]form.Candidate, 0)
	for _, c := range ink.components() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		w, h := float64(c.Width()), float64(c.Height())
		area := w * h
		aspect := w / h
		switch {
		case area <= b.MinArea*s*s || area >= b.MaxArea*s*s:
			continue
		case w <= b.MinWidth*s || h <= b.MinHeight*s:
			continue
		case w > b.MaxWidthRatio*pageW || h > b.MaxHeightRatio*pageH:
			continue
		case aspect <= b.MinAspect || aspect >= b.MaxAspect:
			continue
		}

		inner := c.Rect().Inset(max(2, scaled(b.BorderPx, s)))
		if inner.Empty() || !r.opts.isBlank(statsIn(img, inner)) {
			continue
		}

		x, y := float64(c.MinX), float64(c.MinY)
		label := labelFor(words, x, y, w, h, maxLabelGapPx*s)
		ft := form.FieldTypeText
		if label != "" {
			ft = r.opts.Classify(label)
		}
		out = append(out, form.Candidate{
			PageIndex:  in.Page.Index,
			Box:        form.RasterRect{X: x, Y: y, Width: w, Height: h},
			FieldType:  ft,
			Context:    lowerContext(label),
			Confidence: ConfidenceRectangular,
			Method:     form.MethodRectangular,
		})
	}
	return out, nil
}
