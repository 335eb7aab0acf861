package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
)

type fakeStrategy struct {
	method form.DetectionMethod
	raster bool
	cands  []form.Candidate
	err    error
	panics bool
}

func (f *fakeStrategy) Method() form.DetectionMethod { return f.method }
func (f *fakeStrategy) NeedsRaster() bool            { return f.raster }

func (f *fakeStrategy) Detect(context.Context, *Input) ([]form.Candidate, error) {
	if f.panics {
		panic("index out of range")
	}
	return f.cands, f.err
}

func box() form.RawRect {
	return form.RasterRect{X: 1, Y: 1, Width: 10, Height: 10}
}

func TestRunner_ToleratesFailingStrategies(t *testing.T) {
	runner := NewRunner([]Strategy{
		&fakeStrategy{method: form.MethodUnderline, err: errors.New("ocr engine unavailable")},
		&fakeStrategy{method: form.MethodRectangular, panics: true},
		&fakeStrategy{method: form.MethodTextPattern, cands: []form.Candidate{{Box: box()}, {Box: box()}}},
	}, nil)

	page := letterPage()
	page.Index = 2
	res := runner.Run(context.Background(), &Input{Page: page, Zoom: 3})

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "text_pattern_2_0", res.Candidates[0].ID)
	assert.Equal(t, "text_pattern_2_1", res.Candidates[1].ID)
	assert.Equal(t, form.MethodTextPattern, res.Candidates[0].Method)
	assert.Equal(t, 2, res.Candidates[0].PageIndex)

	require.Len(t, res.Errors, 2)
	assert.True(t, pdferrors.IsDetectorError(res.Errors[0]))
	assert.Equal(t, "underline", res.Errors[0].Detector)
	assert.Equal(t, 2, res.Errors[0].PageIndex)
	assert.Equal(t, "rectangular", res.Errors[1].Detector)
	assert.Contains(t, res.Errors[1].Error(), "panic")

	require.Len(t, res.Outcomes, 3)
	assert.Error(t, res.Outcomes[0].Err)
	assert.Equal(t, 2, res.Outcomes[2].Candidates)
}

func TestRunner_SkipsRasterStrategiesWithoutRaster(t *testing.T) {
	runner := NewRunner([]Strategy{
		&fakeStrategy{method: form.MethodRectangular, raster: true, cands: []form.Candidate{{Box: box()}}},
	}, nil)
	assert.True(t, runner.NeedsRaster())

	res := runner.Run(context.Background(), &Input{Page: letterPage(), Zoom: 3})
	assert.Empty(t, res.Candidates)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Outcomes, 1)
	assert.True(t, res.Outcomes[0].Skipped)
}

func TestRunner_KeepsNativeIDs(t *testing.T) {
	page := letterPage()
	page.Widgets = []form.Candidate{{ID: "acroform_email_0", Box: form.NativeRect{X: 1, Y: 1, Width: 50, Height: 10}, Method: form.MethodNativeWidget}}

	runner := NewRunner([]Strategy{NativeWidgets{}}, nil)
	res := runner.Run(context.Background(), &Input{Page: page, Zoom: 3})
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "acroform_email_0", res.Candidates[0].ID)
	assert.False(t, runner.NeedsRaster())
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner([]Strategy{&fakeStrategy{method: form.MethodWhitespace}}, nil)
	res := runner.Run(ctx, &Input{Page: letterPage(), Zoom: 3})
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], context.Canceled)
}

func TestStrategies(t *testing.T) {
	got, err := Strategies([]string{"native_widget", "text_pattern", "dotted_leader", "underline", "rectangular", "whitespace", "text_pattern"}, Options{})
	require.NoError(t, err)
	require.Len(t, got, 6, "duplicates are dropped")
	assert.Equal(t, form.MethodNativeWidget, got[0].Method())
	assert.Equal(t, form.MethodWhitespace, got[5].Method())

	_, err = Strategies([]string{"hough_lines"}, Options{})
	assert.Error(t, err)
}
