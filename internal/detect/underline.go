package detect

import (
	"context"
	"image"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// Underline thresholds in raster pixels at referenceZoom
const (
	underlineKernelPx  = 50.0
	maxStrokePx        = 10.0
	labelSearchAbovePx = 50.0
	underlineFieldPx   = 30.0
	minUnderlineWidth  = 150.0
	boxSidePx          = 20.0
	underlineInkLevel  = 128
)

// Underline finds long thin horizontal strokes and accepts those with a
// readable label above or to the left, so stray ruling lines are ignored.
type Underline struct {
	opts Options
}

// Method implements Strategy
func (*Underline) Method() form.DetectionMethod { return form.MethodUnderline }

// NeedsRaster implements Strategy
func (*Underline) NeedsRaster() bool { return true }

// Detect implements Strategy
func (u *Underline) Detect(ctx context.Context, in *Input) ([]form.Candidate, error) {
	if in.Raster == nil {
		return nil, nil
	}
	s := in.scale()
	img := in.Raster
	dark := darkMask(img, underlineInkLevel)
	strokes := dark.openH(max(2, scaled(underlineKernelPx, s)))
	words := wordsIn(in, form.SpaceRaster)

	out := make([]form.Candidate, 0)
	for _, c := range strokes.components() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if c.Height() > max(1, scaled(maxStrokePx, s)) {
			continue
		}
		if boxEdge(dark, c, scaled(boxSidePx, s)) {
			continue
		}

		fh := float64(scaled(underlineFieldPx, s))
		x, y := float64(c.MinX), float64(c.MinY)-fh
		label := labelFor(words, x, y, float64(c.Width()), fh, maxLabelGapPx*s)
		if label == "" && u.opts.OCR != nil {
			label = u.ocrAbove(ctx, img, c, s)
		}
		if utf8.RuneCountInString(label) < minLabelRunes {
			continue
		}

		out = append(out, form.Candidate{
			PageIndex: in.Page.Index,
			Box: form.RasterRect{
				X:      x,
				Y:      math.Max(0, y),
				Width:  math.Max(float64(c.Width()), minUnderlineWidth*s),
				Height: fh,
			},
			FieldType:  u.opts.Classify(label),
			Context:    lowerContext(label),
			Confidence: ConfidenceUnderline,
			Method:     form.MethodUnderline,
		})
	}
	return out, nil
}

// boxEdge reports whether a stroke is the top or bottom edge of a drawn
// box, recognized by a vertical side running off its left end.
func boxEdge(dark *mask, c component, side int) bool {
	if side < 2 {
		side = 2
	}
	for x := c.MinX; x <= c.MinX+2 && x <= c.MaxX; x++ {
		down := dark.countIn(image.Rect(x, c.MaxY+1, x+1, c.MaxY+1+side))
		up := dark.countIn(image.Rect(x, c.MinY-side, x+1, c.MinY))
		if float64(down) >= 0.8*float64(side) || float64(up) >= 0.8*float64(side) {
			return true
		}
	}
	return false
}

// ocrAbove recognizes the strip just above a stroke
func (u *Underline) ocrAbove(ctx context.Context, img *image.Gray, c component, s float64) string {
	top := max(0, c.MinY-scaled(labelSearchAbovePx, s))
	region := image.Rect(c.MinX, top, c.MaxX+1, c.MinY)
	if region.Empty() {
		return ""
	}
	words, err := u.opts.OCR.Words(ctx, imaging.Crop(img, region))
	if err != nil {
		return ""
	}
	texts := make([]string, 0, len(words))
	for _, w := range words {
		texts = append(texts, w.Text)
	}
	return cleanLabel(strings.Join(texts, " "))
}
