package reconcile

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
)

func TestToPageSpace_KnownValue(t *testing.T) {
	got, err := ToPageSpace(form.RasterRect{X: 300, Y: 600, Width: 200, Height: 40}, 3.0, 612, 792)
	require.NoError(t, err)

	assert.InDelta(t, 100, got.X, 1e-9)
	assert.InDelta(t, 200, got.Y, 1e-9)
	assert.InDelta(t, 66.7, got.Width, 0.05)
	assert.InDelta(t, 13.3, got.Height, 0.05)
}

func TestToPageSpace_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const pageW, pageH = 612.0, 792.0

	for i := 0; i < 500; i++ {
		zoom := 1 + rng.Float64()*4
		// Keep the rectangle inside the page so clamping is a no-op.
		w := 1 + rng.Float64()*200
		h := 1 + rng.Float64()*60
		x := rng.Float64() * (pageW - w)
		y := rng.Float64() * (pageH - h)
		raster := form.RasterRect{X: x * zoom, Y: y * zoom, Width: w * zoom, Height: h * zoom}

		page, err := ToPageSpace(raster, zoom, pageW, pageH)
		require.NoError(t, err)

		back := ToRasterSpace(page, zoom)
		assert.InDelta(t, raster.X, back.X, 1e-6)
		assert.InDelta(t, raster.Y, back.Y, 1e-6)
		assert.InDelta(t, raster.Width, back.Width, 1e-6)
		assert.InDelta(t, raster.Height, back.Height, 1e-6)
	}
}

func TestToPageSpace_Clamps(t *testing.T) {
	got, err := ToPageSpace(form.RasterRect{X: -30, Y: 2300, Width: 2000, Height: 300}, 3.0, 612, 792)
	require.NoError(t, err)

	assert.Equal(t, 0.0, got.X)
	assert.InDelta(t, 2300.0/3, got.Y, 1e-9)
	assert.InDelta(t, 612, got.Right(), 1e-9)
	assert.InDelta(t, 792, got.Bottom(), 1e-9)
}

func TestToPageSpace_Rejects(t *testing.T) {
	tests := []struct {
		name string
		rect form.RasterRect
		zoom float64
	}{
		{"zero width", form.RasterRect{X: 1, Y: 1, Width: 0, Height: 5}, 3},
		{"negative height", form.RasterRect{X: 1, Y: 1, Width: 5, Height: -5}, 3},
		{"nan", form.RasterRect{X: math.NaN(), Y: 1, Width: 5, Height: 5}, 3},
		{"zero zoom", form.RasterRect{X: 1, Y: 1, Width: 5, Height: 5}, 0},
		{"outside page", form.RasterRect{X: 5000, Y: 1, Width: 5, Height: 5}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToPageSpace(tt.rect, tt.zoom, 612, 792)
			assert.Error(t, err)
		})
	}
}

func TestReconciler_PageDropsOnlyBadCandidates(t *testing.T) {
	rc := New(3.0)
	page := form.Page{Index: 1, Width: 612, Height: 792}
	candidates := []form.Candidate{
		{ID: "rectangular_1_0", PageIndex: 1, Box: form.RasterRect{X: 300, Y: 300, Width: 600, Height: 90}, Method: form.MethodRectangular, Confidence: 0.75},
		{ID: "underline_1_0", PageIndex: 1, Box: form.RasterRect{X: 300, Y: 300, Width: 0, Height: 90}, Method: form.MethodUnderline},
		{ID: "acroform_email_1", PageIndex: 1, Box: form.NativeRect{X: 100, Y: 700, Width: 200, Height: 200}, Method: form.MethodNativeWidget, Confidence: 1.4, FieldType: form.FieldTypeEmail},
		{ID: "no_box_1", PageIndex: 1, Method: form.MethodTextPattern},
	}

	fields, errs := rc.Page(page, candidates)
	require.Len(t, fields, 2)
	require.Len(t, errs, 2)

	assert.Equal(t, "rectangular_1_0", fields[0].ID)
	assert.Equal(t, form.PageRect{X: 100, Y: 100, Width: 200, Height: 30}, fields[0].Rect)
	assert.Equal(t, form.FieldTypeText, fields[0].FieldType)

	assert.Equal(t, "acroform_email_1", fields[1].ID)
	assert.InDelta(t, 792, fields[1].Rect.Bottom(), 1e-9)
	assert.Equal(t, 1.0, fields[1].Confidence)

	for _, e := range errs {
		assert.Equal(t, pdferrors.ErrorTypeReconciliation, e.Type)
		assert.Equal(t, 1, e.PageIndex)
		assert.NotEmpty(t, e.FieldID)
	}
}
