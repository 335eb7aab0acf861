package detect

import (
	"context"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// positioned builds a text span with uniform glyph advances
func positioned(text string, x, y, advance, size float64) form.TextSpan {
	runes := []rune(text)
	charX := make([]float64, len(runes))
	charW := make([]float64, len(runes))
	for i := range runes {
		charX[i] = x + float64(i)*advance
		charW[i] = advance
	}
	return form.TextSpan{
		Text: text, X: x, Y: y,
		Width: float64(len(runes)) * advance, Height: size, FontSize: size,
		CharX: charX, CharW: charW,
	}
}

func nativeWord(text string, x, y, w, h float64, line int) form.WordBox {
	return form.WordBox{Text: text, Box: form.NativeRect{X: x, Y: y, Width: w, Height: h}, Confidence: 1, Line: line}
}

func rasterWord(text string, x, y, w, h float64, line int) form.WordBox {
	return form.WordBox{Text: text, Box: form.RasterRect{X: x, Y: y, Width: w, Height: h}, Confidence: 0.9, Line: line}
}

func letterPage() form.Page {
	return form.Page{Index: 0, Width: 612, Height: 792, RasterWidth: 1836, RasterHeight: 2376}
}

func mustStrategy(t *testing.T, m form.DetectionMethod) Strategy {
	t.Helper()
	s, err := New(m, DefaultOptions())
	require.NoError(t, err)
	return s
}

func detectWith(t *testing.T, m form.DetectionMethod, in *Input) []form.Candidate {
	t.Helper()
	cands, err := mustStrategy(t, m).Detect(context.Background(), in)
	require.NoError(t, err)
	return cands
}

func TestRectangular_BlankBox(t *testing.T) {
	img := whitePage(600, 400)
	outline(img, image.Rect(100, 100, 400, 160), 3)

	page := form.Page{Width: 200, Height: 400.0 / 3, RasterWidth: 600, RasterHeight: 400}
	page.Words = []form.WordBox{nativeWord("Email:", 5, 40, 25, 10, 0)}

	cands := detectWith(t, form.MethodRectangular, &Input{Page: page, Raster: img, Zoom: 3})
	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, form.RasterRect{X: 100, Y: 100, Width: 300, Height: 60}, c.Box)
	assert.Equal(t, form.MethodRectangular, c.Method)
	assert.Equal(t, ConfidenceRectangular, c.Confidence)
	assert.Equal(t, form.FieldTypeEmail, c.FieldType)
	assert.Equal(t, "email", c.Context)
}

func TestRectangular_BridgesBrokenOutline(t *testing.T) {
	img := whitePage(600, 400)
	outline(img, image.Rect(100, 100, 400, 160), 3)
	// both side edges broken at the same rows, as a faint scan leaves them
	fill(img, image.Rect(100, 125, 103, 127), 255)
	fill(img, image.Rect(397, 125, 400, 127), 255)

	cands := detectWith(t, form.MethodRectangular, &Input{Page: form.Page{Width: 200, Height: 133}, Raster: img, Zoom: 3})
	require.Len(t, cands, 1)
	assert.Equal(t, form.RasterRect{X: 100, Y: 100, Width: 300, Height: 60}, cands[0].Box)
}

func TestRectangular_RejectsInkedBox(t *testing.T) {
	img := whitePage(600, 400)
	outline(img, image.Rect(100, 100, 400, 160), 3)
	fill(img, image.Rect(120, 115, 260, 140), 0)

	cands := detectWith(t, form.MethodRectangular, &Input{Page: form.Page{Width: 200, Height: 133}, Raster: img, Zoom: 3})
	assert.Empty(t, cands, "a box with content is not a blank field")
}

func TestRectangular_RejectsBadShapes(t *testing.T) {
	img := whitePage(600, 400)
	outline(img, image.Rect(50, 50, 110, 110), 3)  // square: aspect 1
	outline(img, image.Rect(20, 200, 590, 240), 3) // wider than 80% of the page

	cands := detectWith(t, form.MethodRectangular, &Input{Page: form.Page{Width: 200, Height: 133}, Raster: img, Zoom: 3})
	assert.Empty(t, cands)
}

func TestUnderline_LabelledStroke(t *testing.T) {
	img := whitePage(900, 300)
	fill(img, image.Rect(160, 150, 560, 153), 0)
	// unlabelled ruling line
	fill(img, image.Rect(100, 250, 800, 252), 0)

	page := form.Page{Width: 300, Height: 100, RasterWidth: 900, RasterHeight: 300}
	page.Words = []form.WordBox{nativeWord("Name:", 20, 40, 30, 10, 0)}

	cands := detectWith(t, form.MethodUnderline, &Input{Page: page, Raster: img, Zoom: 3})
	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, form.RasterRect{X: 160, Y: 120, Width: 400, Height: 30}, c.Box)
	assert.Equal(t, form.FieldTypeName, c.FieldType)
	assert.Equal(t, "name", c.Context)
	assert.GreaterOrEqual(t, c.Confidence, 0.8)
}

func TestUnderline_IgnoresBoxEdges(t *testing.T) {
	img := whitePage(900, 300)
	outline(img, image.Rect(160, 100, 560, 200), 3)

	page := form.Page{Width: 300, Height: 100}
	page.Words = []form.WordBox{nativeWord("Address", 20, 30, 30, 10, 0)}

	cands := detectWith(t, form.MethodUnderline, &Input{Page: page, Raster: img, Zoom: 3})
	assert.Empty(t, cands)
}

func TestUnderline_NoRaster(t *testing.T) {
	cands := detectWith(t, form.MethodUnderline, &Input{Page: letterPage(), Zoom: 3})
	assert.Empty(t, cands)
}

func TestDottedLeader_TextSpans(t *testing.T) {
	page := letterPage()
	page.Spans = []form.TextSpan{positioned("Name: ..........", 72, 60, 6, 12)}

	cands := detectWith(t, form.MethodDottedLeader, &Input{Page: page, Zoom: 3})
	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, form.NativeRect{X: 72 + 6*6, Y: 60, Width: 60, Height: 12}, c.Box)
	assert.Equal(t, form.FieldTypeName, c.FieldType)
	assert.Equal(t, ConfidenceTextLeader, c.Confidence)
	assert.Equal(t, "name", c.Context)
}

func TestDottedLeader_LegalDatePhrase(t *testing.T) {
	page := letterPage()
	page.Spans = []form.TextSpan{positioned("made this ____ day of ________, 20__ between", 72, 100, 5, 10)}

	cands := detectWith(t, form.MethodDottedLeader, &Input{Page: page, Zoom: 3})
	require.Len(t, cands, 3)
	assert.Equal(t, form.FieldTypeDay, cands[0].FieldType)
	assert.Equal(t, form.FieldTypeMonth, cands[1].FieldType)
	assert.Equal(t, form.FieldTypeYear, cands[2].FieldType)

	x0, _, _, _ := cands[0].Box.Bounds()
	x1, _, _, _ := cands[1].Box.Bounds()
	assert.Less(t, x0, x1)
}

func TestDottedLeader_LabelAfterBlank(t *testing.T) {
	page := letterPage()
	page.Spans = []form.TextSpan{positioned("__________ (Signature)", 72, 700, 5, 10)}

	cands := detectWith(t, form.MethodDottedLeader, &Input{Page: page, Zoom: 3})
	require.Len(t, cands, 1)
	assert.Equal(t, form.FieldTypeSignature, cands[0].FieldType)
}

func TestDottedLeader_EstimatedPositions(t *testing.T) {
	page := letterPage()
	page.Spans = []form.TextSpan{{Text: "City ......", X: 100, Y: 50, Width: 110, Height: 10, FontSize: 10}}

	cands := detectWith(t, form.MethodDottedLeader, &Input{Page: page, Zoom: 3})
	require.Len(t, cands, 1)
	x, _, w, _ := cands[0].Box.Bounds()
	assert.InDelta(t, 150, x, 1e-9)
	assert.InDelta(t, 60, w, 1e-9)
	assert.Equal(t, form.FieldTypeCity, cands[0].FieldType)
}

func TestDottedLeader_Raster(t *testing.T) {
	img := whitePage(600, 300)
	for x := 100; x < 400; x += 6 {
		fill(img, image.Rect(x, 150, x+3, 153), 0)
	}
	// a solid stroke is left to the underline detector
	fill(img, image.Rect(100, 220, 400, 223), 0)

	cands := detectWith(t, form.MethodDottedLeader, &Input{Page: form.Page{Width: 200, Height: 100}, Raster: img, Zoom: 3})
	require.Len(t, cands, 1)
	x, y, w, h := cands[0].Box.Bounds()
	assert.Equal(t, form.SpaceRaster, cands[0].Box.Space())
	assert.Equal(t, 100.0, x)
	assert.Equal(t, 123.0, y)
	assert.Equal(t, 297.0, w)
	assert.Equal(t, 30.0, h)
	assert.Equal(t, ConfidenceRasterLeader, cands[0].Confidence)
}

func TestTextPattern_AnchoredToWords(t *testing.T) {
	page := letterPage()
	page.Words = []form.WordBox{
		nativeWord("Email:", 72, 100, 30, 10, 0),
		nativeWord("Phone:", 250, 100, 32, 10, 0),
		nativeWord("Full", 72, 130, 20, 10, 1),
		nativeWord("Name", 95, 130, 25, 10, 1),
	}

	cands := detectWith(t, form.MethodTextPattern, &Input{Page: page, Zoom: 3})
	require.Len(t, cands, 3)

	byType := map[form.FieldType]form.Candidate{}
	for _, c := range cands {
		byType[c.FieldType] = c
		assert.Equal(t, ConfidenceTextAnchored, c.Confidence)
		assert.Equal(t, form.SpaceNative, c.Box.Space())
	}
	assert.Equal(t, form.NativeRect{X: 105, Y: 100, Width: 60, Height: 10}, byType[form.FieldTypeEmail].Box)
	assert.Contains(t, byType, form.FieldTypePhone)
	assert.Equal(t, form.NativeRect{X: 123, Y: 130, Width: 96, Height: 10}, byType[form.FieldTypeName].Box)
}

func TestTextPattern_UsesDocumentTypeClassifier(t *testing.T) {
	page := letterPage()
	page.Words = []form.WordBox{
		nativeWord("Disclosing", 72, 100, 50, 10, 0),
		nativeWord("Party:", 125, 100, 30, 10, 0),
	}
	in := &Input{Page: page, Zoom: 3}

	assert.Empty(t, detectWith(t, form.MethodTextPattern, in), "unknown to the base taxonomy")

	opts := DefaultOptions()
	opts.Classify = func(label string) form.FieldType {
		if label == "Disclosing Party" {
			return form.FieldTypeName
		}
		return form.FieldTypeText
	}
	s, err := New(form.MethodTextPattern, opts)
	require.NoError(t, err)
	cands, err := s.Detect(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, cands, 1)
	assert.Equal(t, form.FieldTypeName, cands[0].FieldType)
	assert.Equal(t, form.NativeRect{X: 158, Y: 100, Width: 166, Height: 10}, cands[0].Box)
	assert.Equal(t, "disclosing party", cands[0].Context)
}

func TestTextPattern_WrapsBelowAtPageEdge(t *testing.T) {
	page := letterPage()
	page.Words = []form.WordBox{nativeWord("City:", 580, 100, 25, 10, 0)}

	cands := detectWith(t, form.MethodTextPattern, &Input{Page: page, Zoom: 3})
	require.Len(t, cands, 1)
	assert.Equal(t, form.NativeRect{X: 580, Y: 112, Width: 50, Height: 10}, cands[0].Box)
}

func TestTextPattern_RejectsPrintedArea(t *testing.T) {
	img := whitePage(1836, 2376)
	// ink to the right of the label
	fill(img, image.Rect(320, 300, 500, 330), 0)

	page := letterPage()
	page.Words = []form.WordBox{nativeWord("Email:", 72, 100, 30, 10, 0)}

	cands := detectWith(t, form.MethodTextPattern, &Input{Page: page, Raster: img, Zoom: 3})
	assert.Empty(t, cands)

	cands = detectWith(t, form.MethodTextPattern, &Input{Page: page, Raster: whitePage(1836, 2376), Zoom: 3})
	assert.Len(t, cands, 1)
}

func TestTextPattern_OCRWordsStayInRasterSpace(t *testing.T) {
	page := letterPage()
	in := &Input{Page: page, OCRWords: []form.WordBox{rasterWord("Email:", 216, 300, 90, 30, 0)}, Zoom: 3}

	cands := detectWith(t, form.MethodTextPattern, in)
	require.Len(t, cands, 1)
	assert.Equal(t, form.RasterRect{X: 315, Y: 300, Width: 180, Height: 30}, cands[0].Box)
}

func TestTextPattern_LineOnly(t *testing.T) {
	page := letterPage()
	page.Text = "Applicant details\nE-mail address:\nSignature:"

	cands := detectWith(t, form.MethodTextPattern, &Input{Page: page, Zoom: 3})
	require.Len(t, cands, 3)

	assert.Equal(t, form.FieldTypeName, cands[0].FieldType)
	assert.Equal(t, form.RasterRect{X: 200, Y: 50, Width: 250, Height: 30}, cands[0].Box)
	assert.Equal(t, form.FieldTypeEmail, cands[1].FieldType)
	assert.Equal(t, form.RasterRect{X: 200, Y: 90, Width: 250, Height: 30}, cands[1].Box)
	assert.Equal(t, form.RasterRect{X: 200, Y: 130, Width: 300, Height: 50}, cands[2].Box)
	for _, c := range cands {
		assert.Equal(t, ConfidenceTextLineOnly, c.Confidence)
	}
}

func TestWhitespace_SpanGap(t *testing.T) {
	page := letterPage()
	// 14 spaces at 5pt = 70pt, above the 50pt minimum
	page.Spans = []form.TextSpan{
		positioned("Phone:              Notes", 72, 200, 5, 10),
		positioned("alpha          beta", 72, 230, 5, 10),
		positioned("Email:   x", 72, 260, 5, 10),
	}

	cands := detectWith(t, form.MethodWhitespace, &Input{Page: page, Zoom: 3})
	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, form.FieldTypePhone, c.FieldType)
	assert.Equal(t, ConfidenceWhitespace, c.Confidence)
	assert.Equal(t, form.NativeRect{X: 104, Y: 200, Width: 66, Height: 10}, c.Box)
}

func TestWhitespace_TrailingRunAfterLabel(t *testing.T) {
	blank := strings.Repeat(" ", 12)
	page := letterPage()
	page.Spans = []form.TextSpan{
		positioned("Name:"+blank, 72, 200, 5, 10),
		positioned("alpha"+blank, 72, 230, 5, 10),
		// no glyph positions: 17 runes over 85pt
		{Text: "Name:" + blank, X: 72, Y: 260, Width: 85, Height: 10, FontSize: 10},
	}

	cands := detectWith(t, form.MethodWhitespace, &Input{Page: page, Zoom: 3})
	require.Len(t, cands, 2)
	assert.Equal(t, form.NativeRect{X: 99, Y: 200, Width: 56, Height: 10}, cands[0].Box)
	assert.Equal(t, form.NativeRect{X: 99, Y: 260, Width: 56, Height: 10}, cands[1].Box)
	for _, c := range cands {
		assert.Equal(t, form.FieldTypeName, c.FieldType)
	}
}

func TestWhitespace_OCRGap(t *testing.T) {
	in := &Input{
		Page: letterPage(),
		OCRWords: []form.WordBox{
			rasterWord("Remarks:", 100, 300, 120, 30, 0),
			rasterWord("End", 600, 300, 60, 30, 0),
			rasterWord("lorem", 100, 400, 90, 30, 1),
			rasterWord("ipsum", 400, 400, 90, 30, 1),
		},
		Zoom: 3,
	}

	cands := detectWith(t, form.MethodWhitespace, in)
	require.Len(t, cands, 1)
	assert.Equal(t, form.RasterRect{X: 226, Y: 300, Width: 368, Height: 30}, cands[0].Box)
	assert.Equal(t, form.FieldTypeText, cands[0].FieldType)
	assert.Equal(t, "remarks", cands[0].Context)
}

func TestNativeWidgets_PassThrough(t *testing.T) {
	page := letterPage()
	page.Widgets = []form.Candidate{{
		ID: "acroform_full_name_0", Box: form.NativeRect{X: 10, Y: 10, Width: 100, Height: 20},
		FieldType: form.FieldTypeName, Method: form.MethodNativeWidget, Confidence: 0.95,
	}}

	cands := detectWith(t, form.MethodNativeWidget, &Input{Page: page, Zoom: 3})
	require.Len(t, cands, 1)
	assert.Equal(t, page.Widgets[0], cands[0])

	cands[0].ID = "changed"
	assert.Equal(t, "acroform_full_name_0", page.Widgets[0].ID)
}

func TestCleanLabel(t *testing.T) {
	tests := map[string]string{
		"Name:":           "Name",
		"  Date of Birth": "Date of Birth",
		"Total ____":      "Total",
		"City ...":        "City",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanLabel(in), in)
	}
}
