package detect

import (
	"context"
	"image"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// Anchored field geometry in page units
const (
	anchorGap         = 3.0
	belowGap          = 2.0
	minAnchoredWidth  = 50.0
	minAnchoredHeight = 8.0
	signatureWidth    = 100.0
	signatureHeight   = 17.0
)

// Line-only estimates in raster pixels at referenceZoom
const (
	lineOnlyLeft   = 200.0
	lineOnlyTop    = 50.0
	lineOnlyPitch  = 40.0
	lineOnlyWidth  = 250.0
	lineOnlyHeight = 30.0
)

// TextPattern finds labels from the field taxonomy, or labels the
// document-type aware Classify recognizes, and places a field next to each. With word boxes the field is anchored right of the label;
// with bare text lines the position is a coarse estimate.
type TextPattern struct {
	opts Options
}

// Method implements Strategy
func (*TextPattern) Method() form.DetectionMethod { return form.MethodTextPattern }

// NeedsRaster implements Strategy
func (*TextPattern) NeedsRaster() bool { return false }

// Detect implements Strategy
func (t *TextPattern) Detect(ctx context.Context, in *Input) ([]form.Candidate, error) {
	if space, ok := nativeSource(in); ok {
		return t.anchored(in, space), nil
	}
	return t.lineOnly(in), nil
}

func (t *TextPattern) anchored(in *Input, space form.Space) []form.Candidate {
	u := in.unitsPerPoint(space)
	pageW := in.Page.Width * u
	out := make([]form.Candidate, 0)

	for _, line := range lines(wordsIn(in, space)) {
		var b strings.Builder
		starts := make([]int, len(line))
		pos := 0
		for i, w := range line {
			if i > 0 {
				b.WriteByte(' ')
				pos++
			}
			starts[i] = pos
			b.WriteString(w.Text)
			pos += utf8.RuneCountInString(w.Text)
		}

		for _, m := range t.opts.Taxonomy.MatchLineWith(b.String(), t.opts.Classify) {
			label := make([]word, 0, 2)
			for i, w := range line {
				end := starts[i] + utf8.RuneCountInString(w.Text)
				if starts[i] < m.End && end > m.Start {
					label = append(label, w)
				}
			}
			if len(label) == 0 {
				continue
			}
			lb := union(label)

			x := lb.right() + anchorGap*u
			y := lb.Y
			fw := math.Max(minAnchoredWidth*u, 2*lb.W)
			fh := math.Max(minAnchoredHeight*u, lb.H)
			if m.Type == form.FieldTypeSignature {
				fw = math.Max(fw, signatureWidth*u)
				fh = math.Max(fh, signatureHeight*u)
			}
			if pageW > 0 && x+fw > pageW {
				x = lb.X
				y = lb.bottom() + belowGap*u
			}
			if in.Raster != nil && !t.blankAt(in, u, x, y, fw, fh) {
				continue
			}

			out = append(out, form.Candidate{
				PageIndex:  in.Page.Index,
				Box:        form.NewRawRect(space, x, y, fw, fh),
				FieldType:  m.Type,
				Context:    lowerContext(m.Label),
				Confidence: ConfidenceTextAnchored,
				Method:     form.MethodTextPattern,
			})
		}
	}
	return out
}

// blankAt checks the proposed field area on the raster. A label followed
// by printed text is not a blank to fill.
func (t *TextPattern) blankAt(in *Input, u, x, y, w, h float64) bool {
	f := in.zoom() / u
	r := image.Rect(int(x*f), int(y*f), int(math.Ceil((x+w)*f)), int(math.Ceil((y+h)*f)))
	if r.Intersect(in.Raster.Bounds()).Empty() {
		return false
	}
	return t.opts.isBlank(statsIn(in.Raster, r))
}

func (t *TextPattern) lineOnly(in *Input) []form.Candidate {
	s := in.scale()
	out := make([]form.Candidate, 0)
	for i, raw := range strings.Split(in.Page.Text, "\n") {
		for _, m := range t.opts.Taxonomy.MatchLineWith(raw, t.opts.Classify) {
			w, h := lineOnlyWidth, lineOnlyHeight
			switch m.Type {
			case form.FieldTypeCheckbox, form.FieldTypeRadio:
				w, h = 20, 20
			case form.FieldTypeSignature:
				w, h = 300, 50
			}
			out = append(out, form.Candidate{
				PageIndex: in.Page.Index,
				Box: form.RasterRect{
					X:      lineOnlyLeft * s,
					Y:      (lineOnlyTop + float64(i)*lineOnlyPitch) * s,
					Width:  w * s,
					Height: h * s,
				},
				FieldType:  m.Type,
				Context:    lowerContext(m.Label),
				Confidence: ConfidenceTextLineOnly,
				Method:     form.MethodTextPattern,
			})
		}
	}
	return out
}
