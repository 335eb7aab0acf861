package overlay

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
	"github.com/a3tai/mcp-form-autofill/internal/pdf/extraction"
	"github.com/a3tai/mcp-form-autofill/internal/pdf/fixture"
	"github.com/a3tai/mcp-form-autofill/internal/reconcile"
)

// formLayout opens a fixture form and turns its widgets into fields, plus
// one detected field with no widget behind it.
func formLayout(t *testing.T) *form.DocumentLayout {
	t.Helper()
	page := fixture.Letter()
	page.Texts = []fixture.Text{{X: 72, Y: 400, Size: 12, S: "Date: __________"}}
	page.Widgets = []fixture.Widget{
		{Name: "full_name", Kind: "Tx", Rect: [4]float64{100, 600, 300, 620}},
		{Name: "agree", Kind: "Btn", Rect: [4]float64{72, 500, 86, 514}, OnState: "On"},
		{Name: "state", Kind: "Ch", Rect: [4]float64{320, 600, 400, 620}, Options: []string{"CA", "NY"}},
		{Name: "signature", Kind: "Sig", Rect: [4]float64{72, 100, 272, 140}},
	}
	path := filepath.Join(t.TempDir(), "form.pdf")
	require.NoError(t, fixture.WriteFile(path, page))

	doc, err := extraction.Open(context.Background(), path, extraction.Options{})
	require.NoError(t, err)

	fields, errs := reconcile.New(doc.Zoom()).Page(doc.Pages[0], doc.Pages[0].Widgets)
	require.Empty(t, errs)
	fields = append(fields, form.Field{
		ID:         "dotted_leader_0_0",
		PageIndex:  0,
		Rect:       form.PageRect{X: 108, Y: 380, Width: 60, Height: 14},
		FieldType:  form.FieldTypeDate,
		Context:    "date",
		Confidence: 0.9,
		Method:     form.MethodDottedLeader,
	})
	return &form.DocumentLayout{
		ID: "doc-1", SourcePath: path, Format: form.FormatPDF, Zoom: doc.Zoom(),
		Pages: doc.Pages, Fields: fields,
	}
}

func fieldByNative(t *testing.T, l *form.DocumentLayout, name string) form.Field {
	t.Helper()
	for _, f := range l.Fields {
		if f.NativeName == name {
			return f
		}
	}
	t.Fatalf("no field for widget %s", name)
	return form.Field{}
}

type widgetState struct {
	value string
	as    string
}

// readBack returns the value and appearance state of every widget by name
func readBack(t *testing.T, path string) (map[string]widgetState, *model.Context) {
	t.Helper()
	ctx, err := extraction.ReadContext(path)
	require.NoError(t, err)
	pages, err := extraction.ReadWidgets(ctx)
	require.NoError(t, err)

	out := map[string]widgetState{}
	for _, refs := range pages {
		for _, r := range refs {
			var st widgetState
			if v, ok := r.Dict.Find("V"); ok {
				if s, err := ctx.DereferenceStringOrHexLiteral(v, model.V10, nil); err == nil {
					st.value = s
				} else if n, err := ctx.DereferenceName(v, model.V10, nil); err == nil {
					st.value = string(n)
				}
			}
			if as := r.Dict.NameEntry("AS"); as != nil {
				st.as = *as
			}
			out[r.Name] = st
		}
	}
	return out, ctx
}

func TestApply_PDF(t *testing.T) {
	layout := formLayout(t)
	out := filepath.Join(t.TempDir(), "filled.pdf")

	values := Values{
		fieldByNative(t, layout, "full_name").ID: "Ada Lovelace",
		fieldByNative(t, layout, "agree").ID:     "yes",
		fieldByNative(t, layout, "state").ID:     "NY",
		fieldByNative(t, layout, "signature").ID: "Ada",
		"dotted_leader_0_0":                      "2024-05-01",
		"nope":                                   "x",
	}
	m, err := NewWriter(nil).Apply(context.Background(), layout, values, out)
	require.NoError(t, err)

	assert.Equal(t, out, m.OutputPath)
	assert.ElementsMatch(t, []string{
		fieldByNative(t, layout, "full_name").ID,
		fieldByNative(t, layout, "agree").ID,
		fieldByNative(t, layout, "state").ID,
		"dotted_leader_0_0",
	}, m.Filled)

	require.Len(t, m.Unfilled, 2)
	failed := map[string]string{}
	for _, f := range m.Unfilled {
		failed[f.FieldID] = f.Reason
	}
	assert.Contains(t, failed[fieldByNative(t, layout, "signature").ID], "signature")
	assert.Contains(t, failed["nope"], "no field")
	for _, e := range m.Errors {
		assert.True(t, pdferrors.IsWriteError(e))
		assert.NotEmpty(t, e.FieldID)
	}

	got, ctx := readBack(t, out)
	assert.Equal(t, "Ada Lovelace", got["full_name"].value)
	assert.Equal(t, "On", got["agree"].as, "checkbox takes its on state, not the text")
	assert.Equal(t, "On", got["agree"].value)
	assert.Equal(t, "NY", got["state"].value)
	assert.Equal(t, "2024-05-01", got["dotted_leader_0_0"].value)

	catalog, err := ctx.Catalog()
	require.NoError(t, err)
	acroObj, ok := catalog.Find("AcroForm")
	require.True(t, ok)
	acro, err := ctx.DereferenceDict(acroObj)
	require.NoError(t, err)
	need, ok := acro.Find("NeedAppearances")
	require.True(t, ok)
	assert.Equal(t, "true", need.String())
}

func TestApply_PDFIsIdempotent(t *testing.T) {
	layout := formLayout(t)
	dir := t.TempDir()
	values := Values{
		fieldByNative(t, layout, "full_name").ID: "Grace Hopper",
		fieldByNative(t, layout, "agree").ID:     false,
		"dotted_leader_0_0":                      "1906-12-09",
	}
	w := NewWriter(nil)

	first := filepath.Join(dir, "first.pdf")
	_, err := w.Apply(context.Background(), layout, values, first)
	require.NoError(t, err)
	second := filepath.Join(dir, "second.pdf")
	_, err = w.Apply(context.Background(), layout, values, second)
	require.NoError(t, err)

	a, _ := readBack(t, first)
	b, _ := readBack(t, second)
	assert.Equal(t, a, b)
	assert.Equal(t, "Off", a["agree"].as)

	// filling the filled document again reuses the synthesized widget
	refilled := *layout
	refilled.SourcePath = first
	third := filepath.Join(dir, "third.pdf")
	_, err = w.Apply(context.Background(), &refilled, values, third)
	require.NoError(t, err)

	c, ctx := readBack(t, third)
	assert.Equal(t, a, c)
	pages, err := extraction.ReadWidgets(ctx)
	require.NoError(t, err)
	count := 0
	for _, r := range pages[0] {
		if r.Name == "dotted_leader_0_0" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestApply_PDFPerFieldErrors(t *testing.T) {
	layout := formLayout(t)
	layout.Fields = append(layout.Fields, form.Field{
		ID: "rectangular_0_0", PageIndex: 0, Method: form.MethodRectangular,
		Rect: form.PageRect{X: 500, Y: 700, Width: 300, Height: 200},
	}, form.Field{
		ID: "whitespace_3_0", PageIndex: 3, Method: form.MethodWhitespace,
		Rect: form.PageRect{X: 10, Y: 10, Width: 30, Height: 10},
	})
	values := Values{
		fieldByNative(t, layout, "state").ID:     "TX",
		fieldByNative(t, layout, "agree").ID:     "maybe",
		fieldByNative(t, layout, "full_name").ID: "still written",
		"rectangular_0_0":                        "too big",
		"whitespace_3_0":                         "no page",
	}

	m, err := NewWriter(nil).Apply(context.Background(), layout, values, filepath.Join(t.TempDir(), "out.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []string{fieldByNative(t, layout, "full_name").ID}, m.Filled)
	assert.Len(t, m.Unfilled, 4)
}

func TestApply_UsesStoredValues(t *testing.T) {
	layout := formLayout(t)
	for i := range layout.Fields {
		if layout.Fields[i].NativeName == "full_name" {
			layout.Fields[i].Values.SetAI("Suggested Name")
		}
	}
	out := filepath.Join(t.TempDir(), "out.pdf")
	m, err := NewWriter(nil).Apply(context.Background(), layout, nil, out)
	require.NoError(t, err)
	assert.Len(t, m.Filled, 1)

	got, _ := readBack(t, out)
	assert.Equal(t, "Suggested Name", got["full_name"].value)
}

func TestApply_RejectsSourceAsOutput(t *testing.T) {
	layout := formLayout(t)
	_, err := NewWriter(nil).Apply(context.Background(), layout, nil, layout.SourcePath)
	assert.Error(t, err)
}

func TestApply_UnreadableSource(t *testing.T) {
	layout := &form.DocumentLayout{SourcePath: filepath.Join(t.TempDir(), "gone.pdf"), Format: form.FormatPDF}
	_, err := NewWriter(nil).Apply(context.Background(), layout, nil, filepath.Join(t.TempDir(), "out.pdf"))
	require.Error(t, err)
	assert.True(t, pdferrors.IsFormatError(err))
}

func imageLayout(t *testing.T) *form.DocumentLayout {
	t.Helper()
	img := imaging.New(300, 150, color.White)
	path := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, imaging.Save(img, path))
	return &form.DocumentLayout{
		SourcePath: path,
		Format:     form.FormatImage,
		Zoom:       3,
		Pages:      []form.Page{{Width: 100, Height: 50, RasterWidth: 300, RasterHeight: 150}},
		Fields: []form.Field{
			{ID: "text_pattern_0_0", Rect: form.PageRect{X: 10, Y: 10, Width: 60, Height: 15}, FieldType: form.FieldTypeName, Method: form.MethodTextPattern},
			{ID: "text_pattern_0_1", Rect: form.PageRect{X: 10, Y: 30, Width: 10, Height: 10}, FieldType: form.FieldTypeCheckbox, Method: form.MethodTextPattern},
			{ID: "rectangular_0_0", Rect: form.PageRect{X: 200, Y: 200, Width: 10, Height: 10}, Method: form.MethodRectangular},
		},
	}
}

func inkIn(img image.Image, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if c.Y < 128 {
				n++
			}
		}
	}
	return n
}

func TestApply_Image(t *testing.T) {
	layout := imageLayout(t)
	out := filepath.Join(t.TempDir(), "filled.png")
	values := Values{
		"text_pattern_0_0": "Ada",
		"text_pattern_0_1": false,
		"rectangular_0_0":  "off page",
	}

	m, err := NewWriter(nil).Apply(context.Background(), layout, values, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"text_pattern_0_0", "text_pattern_0_1"}, m.Filled)
	require.Len(t, m.Unfilled, 1)
	assert.Equal(t, "rectangular_0_0", m.Unfilled[0].FieldID)

	img, err := imaging.Open(out)
	require.NoError(t, err)
	field := image.Rect(30, 30, 210, 75)
	assert.Greater(t, inkIn(img, field), 0)
	assert.Equal(t, inkIn(img, img.Bounds()), inkIn(img, field), "text stays inside its field")
	assert.Equal(t, 0, inkIn(img, image.Rect(30, 90, 60, 120)), "unchecked box stays empty")
}

func TestApply_ImageIsIdempotent(t *testing.T) {
	layout := imageLayout(t)
	dir := t.TempDir()
	values := Values{"text_pattern_0_0": "Grace", "text_pattern_0_1": "yes"}

	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	_, err := NewWriter(nil).Apply(context.Background(), layout, values, a)
	require.NoError(t, err)
	_, err = NewWriter(nil).Apply(context.Background(), layout, values, b)
	require.NoError(t, err)

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	img, err := imaging.Open(a)
	require.NoError(t, err)
	assert.Greater(t, inkIn(img, image.Rect(30, 90, 60, 120)), 0, "checked box is marked")
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"yes", "Y", "true", "on", "1", "X", "checked"} {
		v, err := ParseBool(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"no", "false", "off", "0", "", " "} {
		v, err := ParseBool(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}
	_, err := ParseBool("perhaps")
	assert.Error(t, err)
}

func TestPdfString(t *testing.T) {
	assert.Equal(t, "416461", string(pdfString("Ada")))
	assert.Equal(t, "feff00e9", string(pdfString("é")))
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("in", "form_filled.pdf"), DefaultOutputPath(filepath.Join("in", "form.pdf")))
}
