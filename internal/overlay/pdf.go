package overlay

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	xunicode "golang.org/x/text/encoding/unicode"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
	"github.com/a3tai/mcp-form-autofill/internal/pdf/extraction"
)

const (
	stateOff        = "Off"
	defaultOnState  = "Yes"
	defaultAppear   = "/Helv 0 Tf 0 g"
	annotFlagPrint  = 4
	rectTolerance   = 0.5
	checkedTextMark = "X"
)

var errSignature = errors.New("signature widgets cannot take a typed value")

// pdfTarget is an open PDF being filled
type pdfTarget struct {
	ctx     *model.Context
	byName  map[string][]extraction.WidgetRef
	dims    []types.Dim
	acro    types.Dict
	touched bool
}

func (w *Writer) applyPDF(ctx context.Context, layout *form.DocumentLayout, assignments []assignment, outPath string, m *Manifest) error {
	pctx, err := extraction.ReadContext(layout.SourcePath)
	if err != nil {
		return pdferrors.NewFormatError(layout.SourcePath, err)
	}
	widgets, err := extraction.ReadWidgets(pctx)
	if err != nil {
		return pdferrors.NewFormatError(layout.SourcePath, err)
	}
	dims, err := pctx.PageDims()
	if err != nil {
		return pdferrors.NewFormatError(layout.SourcePath, err)
	}

	t := &pdfTarget{ctx: pctx, byName: map[string][]extraction.WidgetRef{}, dims: dims}
	for _, page := range widgets {
		for _, ref := range page {
			t.byName[ref.Name] = append(t.byName[ref.Name], ref)
		}
	}

	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.apply(a); err != nil {
			m.fail(a.field.ID, err)
			continue
		}
		m.Filled = append(m.Filled, a.field.ID)
	}

	if t.touched {
		if err := t.needAppearances(); err != nil {
			return fmt.Errorf("failed to update form dictionary: %w", err)
		}
	}
	return writeAtomic(outPath, func(f *os.File) error {
		if err := api.WriteContext(pctx, f); err != nil {
			return fmt.Errorf("failed to write PDF: %w", err)
		}
		return nil
	})
}

// apply writes one value; a panic inside pdfcpu fails only this field
func (t *pdfTarget) apply(a assignment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	if a.field.IsNative() {
		err = t.setNative(a.field, a.value)
	} else {
		err = t.synthesize(a.field, a.value)
	}
	if err == nil {
		t.touched = true
	}
	return err
}

func (t *pdfTarget) refsFor(f form.Field) []extraction.WidgetRef {
	all := t.byName[f.NativeName]
	onPage := make([]extraction.WidgetRef, 0, len(all))
	for _, r := range all {
		if r.PageIndex == f.PageIndex {
			onPage = append(onPage, r)
		}
	}
	if len(onPage) > 0 {
		return onPage
	}
	return all
}

func (t *pdfTarget) setNative(f form.Field, value string) error {
	refs := t.refsFor(f)
	if len(refs) == 0 {
		return fmt.Errorf("widget %q not found in document", f.NativeName)
	}

	switch f.NativeKind {
	case form.WidgetCheckbox:
		on, err := ParseBool(value)
		if err != nil {
			return err
		}
		for _, r := range refs {
			state := stateOff
			if on {
				state = onStateOf(r)
			}
			r.Dict["AS"] = types.Name(state)
			t.fieldDict(r.Dict)["V"] = types.Name(state)
		}
		return nil

	case form.WidgetRadio:
		return t.setRadio(f, refs, value)

	case form.WidgetChoice:
		if len(f.Options) > 0 && !containsFold(f.Options, value) {
			return fmt.Errorf("value %q is not one of the options %v", value, f.Options)
		}
		t.setText(refs, value)
		return nil

	case form.WidgetSignature:
		return errSignature
	}

	t.setText(refs, value)
	return nil
}

// setRadio selects the button whose on-state matches value, or the button
// under the field's rectangle for a yes/no value.
func (t *pdfTarget) setRadio(f form.Field, refs []extraction.WidgetRef, value string) error {
	chosen := -1
	for i, r := range refs {
		if strings.EqualFold(onStateOf(r), strings.TrimSpace(value)) {
			chosen = i
			break
		}
	}
	if chosen < 0 {
		on, err := ParseBool(value)
		if err != nil {
			return err
		}
		if on {
			chosen = t.closestRef(f, refs)
		}
	}

	selected := stateOff
	for i, r := range refs {
		state := stateOff
		if i == chosen {
			state = onStateOf(r)
			selected = state
		}
		r.Dict["AS"] = types.Name(state)
	}
	t.fieldDict(refs[0].Dict)["V"] = types.Name(selected)
	return nil
}

func (t *pdfTarget) closestRef(f form.Field, refs []extraction.WidgetRef) int {
	best, bestDist := 0, math.Inf(1)
	for i, r := range refs {
		if r.PageIndex >= len(t.dims) {
			continue
		}
		rect, ok := extraction.WidgetRect(t.ctx, r.Dict, t.dims[r.PageIndex].Height)
		if !ok {
			continue
		}
		d := math.Abs(rect.X-f.Rect.X) + math.Abs(rect.Y-f.Rect.Y)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// setText stores a string value and drops stale appearances so viewers
// regenerate them.
func (t *pdfTarget) setText(refs []extraction.WidgetRef, value string) {
	for _, r := range refs {
		t.fieldDict(r.Dict)["V"] = pdfString(value)
		delete(r.Dict, "AP")
	}
}

// fieldDict returns the dictionary that holds the field value: the widget
// itself when it carries a name, else its parent.
func (t *pdfTarget) fieldDict(d types.Dict) types.Dict {
	if _, ok := d.Find("T"); ok {
		return d
	}
	if p, ok := d.Find("Parent"); ok {
		if parent, err := t.ctx.DereferenceDict(p); err == nil && parent != nil {
			return parent
		}
	}
	return d
}

// synthesize adds a text widget at the field rectangle. Widgets are named
// after the field id, so a document filled before gets its widget updated
// instead of a second one stacked on top.
func (t *pdfTarget) synthesize(f form.Field, value string) error {
	if f.PageIndex < 0 || f.PageIndex >= len(t.dims) {
		return fmt.Errorf("page %d out of range", f.PageIndex)
	}
	dim := t.dims[f.PageIndex]
	r := f.Rect
	if !r.Valid() || r.X < -rectTolerance || r.Y < -rectTolerance ||
		r.Right() > dim.Width+rectTolerance || r.Bottom() > dim.Height+rectTolerance {
		return fmt.Errorf("rectangle %+v does not fit the %gx%g page", r, dim.Width, dim.Height)
	}

	if f.IsBoolean() {
		on, err := ParseBool(value)
		if err != nil {
			return err
		}
		value = ""
		if on {
			value = checkedTextMark
		}
	}

	rect := types.Array{
		types.Float(r.X), types.Float(dim.Height - r.Bottom()),
		types.Float(r.Right()), types.Float(dim.Height - r.Y),
	}

	if existing := t.byName[f.ID]; len(existing) > 0 {
		d := existing[0].Dict
		d["Rect"] = rect
		t.setText(existing[:1], value)
		return nil
	}

	pageDict, pageRef, _, err := t.ctx.PageDict(f.PageIndex+1, false)
	if err != nil || pageDict == nil || pageRef == nil {
		return fmt.Errorf("page %d not readable", f.PageIndex)
	}
	acro, err := t.acroForm()
	if err != nil {
		return err
	}

	d := types.Dict{
		"Type":    types.Name("Annot"),
		"Subtype": types.Name("Widget"),
		"FT":      types.Name("Tx"),
		"T":       pdfString(f.ID),
		"Rect":    rect,
		"F":       types.Integer(annotFlagPrint),
		"P":       *pageRef,
		"DA":      types.StringLiteral(defaultAppear),
		"V":       pdfString(value),
	}
	if f.Context != "" {
		d["TU"] = pdfString(f.Context)
	}
	ir, err := t.ctx.IndRefForNewObject(d)
	if err != nil {
		return fmt.Errorf("failed to add widget: %w", err)
	}

	pageDict["Annots"] = append(t.array(pageDict, "Annots"), *ir)
	acro["Fields"] = append(t.array(acro, "Fields"), *ir)
	t.byName[f.ID] = append(t.byName[f.ID], extraction.WidgetRef{
		PageIndex: f.PageIndex, Name: f.ID, Kind: form.WidgetText, Dict: d,
	})
	return nil
}

// array returns a copy of an array entry, resolving indirect references
func (t *pdfTarget) array(d types.Dict, key string) types.Array {
	obj, ok := d.Find(key)
	if !ok {
		return types.Array{}
	}
	arr, err := t.ctx.DereferenceArray(obj)
	if err != nil || arr == nil {
		return types.Array{}
	}
	return append(types.Array{}, arr...)
}

// acroForm returns the catalog's form dictionary, creating it if needed
func (t *pdfTarget) acroForm() (types.Dict, error) {
	if t.acro != nil {
		return t.acro, nil
	}
	catalog, err := t.ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if obj, ok := catalog.Find("AcroForm"); ok {
		if d, err := t.ctx.DereferenceDict(obj); err == nil && d != nil {
			t.acro = d
			return d, nil
		}
	}
	t.acro = types.Dict{"Fields": types.Array{}}
	catalog["AcroForm"] = t.acro
	return t.acro, nil
}

// needAppearances asks viewers to build appearances for changed values
// and makes sure the default font they need is declared.
func (t *pdfTarget) needAppearances() error {
	acro, err := t.acroForm()
	if err != nil {
		return err
	}
	acro["NeedAppearances"] = types.Boolean(true)
	if _, ok := acro.Find("DA"); !ok {
		acro["DA"] = types.StringLiteral(defaultAppear)
	}
	if _, ok := acro.Find("DR"); !ok {
		acro["DR"] = types.Dict{
			"Font": types.Dict{
				"Helv": types.Dict{
					"Type":     types.Name("Font"),
					"Subtype":  types.Name("Type1"),
					"BaseFont": types.Name("Helvetica"),
					"Encoding": types.Name("WinAnsiEncoding"),
				},
			},
		}
	}
	return nil
}

func onStateOf(r extraction.WidgetRef) string {
	if r.OnState != "" {
		return r.OnState
	}
	return defaultOnState
}

func containsFold(options []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, o := range options {
		if strings.EqualFold(o, v) {
			return true
		}
	}
	return false
}

// pdfString encodes text as a hex string: plain bytes for ASCII, UTF-16BE
// with a byte order mark otherwise.
func pdfString(s string) types.HexLiteral {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return types.HexLiteral(hex.EncodeToString([]byte(s)))
	}
	enc, err := xunicode.UTF16(xunicode.BigEndian, xunicode.UseBOM).NewEncoder().String(s)
	if err != nil {
		return types.HexLiteral(hex.EncodeToString([]byte(s)))
	}
	return types.HexLiteral(hex.EncodeToString([]byte(enc)))
}
