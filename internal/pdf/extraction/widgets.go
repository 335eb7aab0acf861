package extraction

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	"github.com/a3tai/mcp-form-autofill/internal/intelligence"
)

// NativeWidgetConfidence is assigned to every widget read from the form
const NativeWidgetConfidence = 0.95

// Field flag bits (PDF 32000-1, 12.7.3.1 and 12.7.4)
const (
	flagRequired   = 1 << 1
	flagRadio      = 1 << 15
	flagPushbutton = 1 << 16
)

// maxParentDepth bounds /Parent traversal in malformed field trees
const maxParentDepth = 32

var idUnsafe = regexp.MustCompile(`[^A-Za-z0-9_.\-]+`)

// WidgetRef locates one widget annotation inside a pdfcpu context
type WidgetRef struct {
	PageIndex int
	Name      string
	Kind      form.WidgetKind
	Dict      types.Dict
	OnState   string
}

// widgetIDs hands out unique acroform ids within one document
type widgetIDs map[string]int

func (ids widgetIDs) next(name string, pageIndex int) string {
	base := fmt.Sprintf("acroform_%s_%d", idUnsafe.ReplaceAllString(name, "_"), pageIndex)
	ids[base]++
	if n := ids[base]; n > 1 {
		return fmt.Sprintf("%s_%d", base, n)
	}
	return base
}

// ReadWidgets returns the widget annotations of every page, skipping
// push buttons and annotations without a usable rectangle.
func ReadWidgets(ctx *model.Context) ([][]WidgetRef, error) {
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	out := make([][]WidgetRef, ctx.PageCount)
	for i := 0; i < ctx.PageCount; i++ {
		pageDict, _, _, err := ctx.PageDict(i+1, false)
		if err != nil || pageDict == nil {
			continue
		}
		annotsObj, found := pageDict.Find("Annots")
		if !found {
			continue
		}
		annots, err := ctx.DereferenceArray(annotsObj)
		if err != nil {
			continue
		}
		for _, a := range annots {
			d, err := ctx.DereferenceDict(a)
			if err != nil || d == nil {
				continue
			}
			if st := d.NameEntry("Subtype"); st == nil || *st != "Widget" {
				continue
			}
			ref := WidgetRef{
				PageIndex: i,
				Name:      fullName(ctx, d),
				Kind:      widgetKind(ctx, d),
				Dict:      d,
				OnState:   onState(ctx, d),
			}
			if ref.Kind == form.WidgetButton {
				continue
			}
			out[i] = append(out[i], ref)
		}
	}
	return out, nil
}

// widgetCandidates converts widgets to candidates in native page space
func widgetCandidates(ctx *model.Context, widgets [][]WidgetRef, heights []float64) [][]form.Candidate {
	ids := widgetIDs{}
	out := make([][]form.Candidate, len(widgets))
	for pageIdx, refs := range widgets {
		if pageIdx >= len(heights) {
			break
		}
		for _, w := range refs {
			rect, ok := WidgetRect(ctx, w.Dict, heights[pageIdx])
			if !ok {
				continue
			}
			label := tooltip(ctx, w.Dict)
			if label == "" {
				label = intelligence.HumanizeName(w.Name)
			}
			flags := inheritedInt(ctx, w.Dict, "Ff")
			out[pageIdx] = append(out[pageIdx], form.Candidate{
				ID:         ids.next(w.Name, pageIdx),
				PageIndex:  pageIdx,
				Box:        rect,
				FieldType:  widgetFieldType(w.Kind, label),
				Context:    label,
				Confidence: NativeWidgetConfidence,
				Method:     form.MethodNativeWidget,
				Required:   flags&flagRequired != 0,
				NativeName: w.Name,
				NativeKind: w.Kind,
				Options:    options(ctx, w.Dict),
			})
		}
	}
	return out
}

func widgetFieldType(kind form.WidgetKind, label string) form.FieldType {
	switch kind {
	case form.WidgetCheckbox:
		return form.FieldTypeCheckbox
	case form.WidgetRadio:
		return form.FieldTypeRadio
	case form.WidgetChoice:
		return form.FieldTypeDropdown
	case form.WidgetSignature:
		return form.FieldTypeSignature
	}
	return intelligence.ClassifyFieldType(label)
}

// fullName joins /T entries from the field root down to the widget
func fullName(ctx *model.Context, d types.Dict) string {
	parts := make([]string, 0, 2)
	for depth := 0; d != nil && depth < maxParentDepth; depth++ {
		if obj, found := d.Find("T"); found {
			if s, err := ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil); err == nil && s != "" {
				parts = append([]string{s}, parts...)
			}
		}
		parent, found := d.Find("Parent")
		if !found {
			break
		}
		next, err := ctx.DereferenceDict(parent)
		if err != nil {
			break
		}
		d = next
	}
	return strings.Join(parts, ".")
}

// inherited finds an inheritable field attribute on d or its ancestors
func inherited(ctx *model.Context, d types.Dict, key string) (types.Object, bool) {
	for depth := 0; d != nil && depth < maxParentDepth; depth++ {
		if obj, found := d.Find(key); found {
			return obj, true
		}
		parent, found := d.Find("Parent")
		if !found {
			return nil, false
		}
		next, err := ctx.DereferenceDict(parent)
		if err != nil {
			return nil, false
		}
		d = next
	}
	return nil, false
}

func inheritedInt(ctx *model.Context, d types.Dict, key string) int {
	obj, ok := inherited(ctx, d, key)
	if !ok {
		return 0
	}
	i, err := ctx.DereferenceInteger(obj)
	if err != nil || i == nil {
		return 0
	}
	return int(*i)
}

func widgetKind(ctx *model.Context, d types.Dict) form.WidgetKind {
	obj, ok := inherited(ctx, d, "FT")
	if !ok {
		return form.WidgetText
	}
	ft, err := ctx.DereferenceName(obj, model.V10, nil)
	if err != nil {
		return form.WidgetText
	}
	flags := inheritedInt(ctx, d, "Ff")
	switch ft {
	case "Btn":
		switch {
		case flags&flagPushbutton != 0:
			return form.WidgetButton
		case flags&flagRadio != 0:
			return form.WidgetRadio
		}
		return form.WidgetCheckbox
	case "Ch":
		return form.WidgetChoice
	case "Sig":
		return form.WidgetSignature
	}
	return form.WidgetText
}

// onState returns the non-Off normal appearance name of a button widget
func onState(ctx *model.Context, d types.Dict) string {
	apObj, found := d.Find("AP")
	if !found {
		return ""
	}
	ap, err := ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return ""
	}
	nObj, found := ap.Find("N")
	if !found {
		return ""
	}
	n, err := ctx.DereferenceDict(nObj)
	if err != nil || n == nil {
		return ""
	}
	for k := range n {
		if k != "Off" {
			return k
		}
	}
	return ""
}

func tooltip(ctx *model.Context, d types.Dict) string {
	obj, ok := inherited(ctx, d, "TU")
	if !ok {
		return ""
	}
	s, err := ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func options(ctx *model.Context, d types.Dict) []string {
	obj, ok := inherited(ctx, d, "Opt")
	if !ok {
		return nil
	}
	arr, err := ctx.DereferenceArray(obj)
	if err != nil {
		return nil
	}
	opts := make([]string, 0, len(arr))
	for _, o := range arr {
		if s, err := ctx.DereferenceStringOrHexLiteral(o, model.V10, nil); err == nil {
			opts = append(opts, s)
			continue
		}
		// [export display] pairs use the display value
		if pair, err := ctx.DereferenceArray(o); err == nil && len(pair) >= 2 {
			if s, err := ctx.DereferenceStringOrHexLiteral(pair[1], model.V10, nil); err == nil {
				opts = append(opts, s)
			}
		}
	}
	return opts
}

// WidgetRect reads /Rect and flips it to a top-left origin
func WidgetRect(ctx *model.Context, d types.Dict, pageHeight float64) (form.NativeRect, bool) {
	obj, found := d.Find("Rect")
	if !found {
		return form.NativeRect{}, false
	}
	arr, err := ctx.DereferenceArray(obj)
	if err != nil || len(arr) != 4 {
		return form.NativeRect{}, false
	}
	c := make([]float64, 4)
	for i, v := range arr {
		f, err := ctx.DereferenceNumber(v)
		if err != nil {
			return form.NativeRect{}, false
		}
		c[i] = f
	}
	llx, urx := math.Min(c[0], c[2]), math.Max(c[0], c[2])
	lly, ury := math.Min(c[1], c[3]), math.Max(c[1], c[3])
	if urx-llx <= 0 || ury-lly <= 0 {
		return form.NativeRect{}, false
	}
	return form.NativeRect{X: llx, Y: pageHeight - ury, Width: urx - llx, Height: ury - lly}, true
}
