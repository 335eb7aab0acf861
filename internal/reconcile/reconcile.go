// Package reconcile converts detector rectangles into page units. It is the
// only producer of form.Field values from form.Candidate values, so merge
// and overlay never see a raster-space rectangle.
package reconcile

import (
	"fmt"
	"math"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
)

// Reconciler applies one zoom factor to every raster candidate of a run
type Reconciler struct {
	Zoom float64
}

// New returns a reconciler for the given zoom factor
func New(zoom float64) *Reconciler {
	return &Reconciler{Zoom: zoom}
}

// ToPageSpace divides a raster rectangle by zoom on both axes and clamps
// the result to [0, pageW] x [0, pageH].
func ToPageSpace(r form.RasterRect, zoom, pageW, pageH float64) (form.PageRect, error) {
	if zoom <= 0 || math.IsNaN(zoom) {
		return form.PageRect{}, fmt.Errorf("invalid zoom factor %g", zoom)
	}
	return clamp(form.PageRect{
		X:      r.X / zoom,
		Y:      r.Y / zoom,
		Width:  r.Width / zoom,
		Height: r.Height / zoom,
	}, pageW, pageH)
}

// ToRasterSpace is the inverse scale of ToPageSpace, without clamping
func ToRasterSpace(r form.PageRect, zoom float64) form.RasterRect {
	return form.RasterRect{
		X:      r.X * zoom,
		Y:      r.Y * zoom,
		Width:  r.Width * zoom,
		Height: r.Height * zoom,
	}
}

// NativeToPageSpace clamps a rectangle that is already in page units
func NativeToPageSpace(r form.NativeRect, pageW, pageH float64) (form.PageRect, error) {
	return clamp(form.PageRect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}, pageW, pageH)
}

func clamp(r form.PageRect, pageW, pageH float64) (form.PageRect, error) {
	if !r.Valid() {
		return form.PageRect{}, fmt.Errorf("malformed rectangle %+v", r)
	}
	if pageW <= 0 || pageH <= 0 {
		return form.PageRect{}, fmt.Errorf("invalid page size %gx%g", pageW, pageH)
	}

	x0 := math.Max(0, r.X)
	y0 := math.Max(0, r.Y)
	x1 := math.Min(pageW, r.Right())
	y1 := math.Min(pageH, r.Bottom())

	out := form.PageRect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
	if !out.Valid() {
		return form.PageRect{}, fmt.Errorf("rectangle %+v lies outside the %gx%g page", r, pageW, pageH)
	}
	return out, nil
}

// Candidate converts one candidate into a field on a page of the given size
func (rc *Reconciler) Candidate(c form.Candidate, pageW, pageH float64) (form.Field, error) {
	var (
		rect form.PageRect
		err  error
	)
	switch box := c.Box.(type) {
	case form.RasterRect:
		rect, err = ToPageSpace(box, rc.Zoom, pageW, pageH)
	case form.NativeRect:
		rect, err = NativeToPageSpace(box, pageW, pageH)
	default:
		err = fmt.Errorf("candidate has no rectangle")
	}
	if err != nil {
		return form.Field{}, err
	}

	fieldType := c.FieldType
	if fieldType == "" {
		fieldType = form.FieldTypeText
	}

	return form.Field{
		ID:         c.ID,
		PageIndex:  c.PageIndex,
		Rect:       rect,
		FieldType:  fieldType,
		Context:    c.Context,
		Confidence: clampUnit(c.Confidence),
		Method:     c.Method,
		Required:   c.Required,
		NativeName: c.NativeName,
		NativeKind: c.NativeKind,
		Options:    c.Options,
	}, nil
}

// Page reconciles every candidate of one page. Malformed candidates are
// dropped and reported individually; the rest of the page survives.
func (rc *Reconciler) Page(page form.Page, candidates []form.Candidate) ([]form.Field, []*pdferrors.ProcessingError) {
	fields := make([]form.Field, 0, len(candidates))
	var errs []*pdferrors.ProcessingError

	for _, c := range candidates {
		f, err := rc.Candidate(c, page.Width, page.Height)
		if err != nil {
			errs = append(errs, pdferrors.NewReconciliationError(c.ID, page.Index, err.Error()))
			continue
		}
		fields = append(fields, f)
	}
	return fields, errs
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
