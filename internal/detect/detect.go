// Package detect finds candidate form fields on a page. Each strategy looks
// at the page raster, the text layer or OCR words and emits candidates in
// its own coordinate space; reconciliation and deduplication happen later.
package detect

import (
	"context"
	"fmt"
	"image"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	"github.com/a3tai/mcp-form-autofill/internal/intelligence"
)

// referenceZoom is the raster scale the pixel thresholds below were tuned
// at. Thresholds are rescaled for other zoom factors.
const referenceZoom = 3.0

// Confidence bands per strategy
const (
	ConfidenceTextAnchored = 0.85
	ConfidenceTextLineOnly = 0.7
	ConfidenceTextLeader   = 0.9
	ConfidenceRasterLeader = 0.85
	ConfidenceUnderline    = 0.85
	ConfidenceRectangular  = 0.75
	ConfidenceWhitespace   = 0.6
)

// Defaults for Options
const (
	DefaultMinWhitespacePx = 150
	DefaultBlankMeanMin    = 220
	DefaultBlankStdMax     = 38
	DefaultDarkRatioMax    = 0.05
)

const (
	// darkPixelLevel counts as ink in blank-region statistics
	darkPixelLevel  = 100
	// minLabelRunes is the shortest label that counts as evidence
	minLabelRunes   = 3
	maxContextRunes = 40
)

// Input is everything a strategy may inspect for one page
type Input struct {
	Page form.Page
	// Raster is the page rendered at Zoom; nil when rendering failed.
	Raster *image.Gray
	// OCRWords are recognized words in raster space; nil without OCR.
	OCRWords []form.WordBox
	Zoom     float64
}

// scale converts pixel thresholds tuned at referenceZoom to this raster
func (in *Input) scale() float64 {
	if in.Zoom <= 0 {
		return 1
	}
	return in.Zoom / referenceZoom
}

func (in *Input) zoom() float64 {
	if in.Zoom <= 0 {
		return referenceZoom
	}
	return in.Zoom
}

// Strategy is one detection heuristic
type Strategy interface {
	Method() form.DetectionMethod
	// NeedsRaster reports whether Detect has nothing to do without a raster.
	NeedsRaster() bool
	Detect(ctx context.Context, in *Input) ([]form.Candidate, error)
}

// TypeFunc maps a label to a field type
type TypeFunc func(label string) form.FieldType

// WordReader recognizes words on an image region. ocr.Client satisfies it.
type WordReader interface {
	Words(ctx context.Context, img image.Image) ([]form.WordBox, error)
}

// Options tunes the strategies
type Options struct {
	Classify        TypeFunc
	Taxonomy        *intelligence.Taxonomy
	OCR             WordReader
	MinWhitespacePx float64
	BlankMeanMin    float64
	BlankStdMax     float64
	DarkRatioMax    float64
}

// DefaultOptions uses the built-in taxonomy and no OCR
func DefaultOptions() Options {
	return Options{
		Classify:        intelligence.ClassifyFieldType,
		Taxonomy:        intelligence.DefaultTaxonomy(),
		MinWhitespacePx: DefaultMinWhitespacePx,
		BlankMeanMin:    DefaultBlankMeanMin,
		BlankStdMax:     DefaultBlankStdMax,
		DarkRatioMax:    DefaultDarkRatioMax,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Classify == nil {
		o.Classify = d.Classify
	}
	if o.Taxonomy == nil {
		o.Taxonomy = d.Taxonomy
	}
	if o.MinWhitespacePx <= 0 {
		o.MinWhitespacePx = d.MinWhitespacePx
	}
	if o.BlankMeanMin <= 0 {
		o.BlankMeanMin = d.BlankMeanMin
	}
	if o.BlankStdMax <= 0 {
		o.BlankStdMax = d.BlankStdMax
	}
	if o.DarkRatioMax <= 0 {
		o.DarkRatioMax = d.DarkRatioMax
	}
	return o
}

// New builds one strategy by method name
func New(method form.DetectionMethod, opts Options) (Strategy, error) {
	opts = opts.withDefaults()
	switch method {
	case form.MethodNativeWidget:
		return NativeWidgets{}, nil
	case form.MethodTextPattern:
		return &TextPattern{opts: opts}, nil
	case form.MethodDottedLeader:
		return &DottedLeader{opts: opts}, nil
	case form.MethodUnderline:
		return &Underline{opts: opts}, nil
	case form.MethodRectangular:
		return &Rectangular{opts: opts}, nil
	case form.MethodWhitespace:
		return &Whitespace{opts: opts}, nil
	}
	return nil, fmt.Errorf("unknown detection strategy %q", method)
}

// Strategies builds an ordered strategy list from method names
func Strategies(names []string, opts Options) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	seen := make(map[form.DetectionMethod]bool, len(names))
	for _, n := range names {
		m := form.DetectionMethod(n)
		if seen[m] {
			continue
		}
		s, err := New(m, opts)
		if err != nil {
			return nil, err
		}
		seen[m] = true
		out = append(out, s)
	}
	return out, nil
}

// NativeWidgets passes the page's native widgets through unchanged
type NativeWidgets struct{}

// Method implements Strategy
func (NativeWidgets) Method() form.DetectionMethod { return form.MethodNativeWidget }

// NeedsRaster implements Strategy
func (NativeWidgets) NeedsRaster() bool { return false }

// Detect implements Strategy
func (NativeWidgets) Detect(_ context.Context, in *Input) ([]form.Candidate, error) {
	out := make([]form.Candidate, len(in.Page.Widgets))
	copy(out, in.Page.Widgets)
	return out, nil
}
