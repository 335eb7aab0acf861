// Package fixture builds small, valid PDF files for tests: text lines
// drawn in Helvetica and AcroForm widgets, with a correct xref table.
package fixture

import (
	"fmt"
	"os"
	"strings"
)

// GlyphWidth is the advance of every glyph in thousandths of the font
// size. The embedded font declares this width for all characters so text
// positions are predictable.
const GlyphWidth = 500

// Text is a single-line string drawn with its baseline at (X, Y) in PDF
// user space (bottom-left origin).
type Text struct {
	X, Y float64
	Size float64
	S    string
}

// Widget is a merged field and widget annotation
type Widget struct {
	Name string
	// Kind is the /FT value: Tx, Btn, Ch or Sig.
	Kind    string
	Flags   int
	Rect    [4]float64
	Tooltip string
	Options []string
	// OnState names the checked appearance of a Btn widget.
	OnState string
	Value   string
}

// Page describes one page
type Page struct {
	Width, Height float64
	Texts         []Text
	Widgets       []Widget
}

// Letter returns an empty US Letter page
func Letter() Page {
	return Page{Width: 612, Height: 792}
}

type builder struct {
	bodies []string
}

func (b *builder) alloc() int {
	b.bodies = append(b.bodies, "")
	return len(b.bodies)
}

func (b *builder) set(num int, body string) {
	b.bodies[num-1] = body
}

func stream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}

// Build renders pages into PDF bytes
func Build(pages ...Page) []byte {
	b := &builder{}
	catalog := b.alloc()
	pagesObj := b.alloc()
	font := b.alloc()

	widths := make([]string, 0, 95)
	for c := 32; c <= 126; c++ {
		widths = append(widths, fmt.Sprint(GlyphWidth))
	}
	b.set(font, fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>",
		strings.Join(widths, " ")))

	kids := make([]string, 0, len(pages))
	fields := make([]string, 0)
	for _, p := range pages {
		pageObj := b.alloc()
		content := b.alloc()
		kids = append(kids, fmt.Sprintf("%d 0 R", pageObj))

		var cs strings.Builder
		for _, t := range p.Texts {
			size := t.Size
			if size == 0 {
				size = 12
			}
			fmt.Fprintf(&cs, "BT /F1 %g Tf %g %g Td (%s) Tj ET\n", size, t.X, t.Y, escape(t.S))
		}
		b.set(content, stream("", cs.String()))

		annots := make([]string, 0, len(p.Widgets))
		for _, w := range p.Widgets {
			num := b.alloc()
			annots = append(annots, fmt.Sprintf("%d 0 R", num))
			fields = append(fields, fmt.Sprintf("%d 0 R", num))
			b.set(num, widgetDict(b, w, pageObj))
		}

		dict := fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %g %g] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >>",
			pagesObj, p.Width, p.Height, content, font)
		if len(annots) > 0 {
			dict += " /Annots [" + strings.Join(annots, " ") + "]"
		}
		b.set(pageObj, dict+" >>")
	}

	b.set(pagesObj, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	if len(fields) > 0 {
		b.set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R /AcroForm << /Fields [%s] /DA (/Helv 0 Tf 0 g) >> >>",
			pagesObj, strings.Join(fields, " ")))
	} else {
		b.set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))
	}

	var out strings.Builder
	out.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(b.bodies)+1)
	for i, body := range b.bodies {
		offsets[i+1] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(b.bodies)+1)
	for i := 1; i <= len(b.bodies); i++ {
		fmt.Fprintf(&out, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.bodies)+1, catalog, xref)
	return []byte(out.String())
}

func widgetDict(b *builder, w Widget, pageObj int) string {
	kind := w.Kind
	if kind == "" {
		kind = "Tx"
	}
	d := fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /%s /T (%s) /Rect [%g %g %g %g] /P %d 0 R /F 4 /DA (/Helv 0 Tf 0 g)",
		kind, escape(w.Name), w.Rect[0], w.Rect[1], w.Rect[2], w.Rect[3], pageObj)
	if w.Flags != 0 {
		d += fmt.Sprintf(" /Ff %d", w.Flags)
	}
	if w.Tooltip != "" {
		d += fmt.Sprintf(" /TU (%s)", escape(w.Tooltip))
	}
	if len(w.Options) > 0 {
		opts := make([]string, 0, len(w.Options))
		for _, o := range w.Options {
			opts = append(opts, "("+escape(o)+")")
		}
		d += " /Opt [" + strings.Join(opts, " ") + "]"
	}
	if w.Value != "" {
		d += fmt.Sprintf(" /V (%s)", escape(w.Value))
	}
	if kind == "Btn" {
		on := w.OnState
		if on == "" {
			on = "Yes"
		}
		width, height := w.Rect[2]-w.Rect[0], w.Rect[3]-w.Rect[1]
		bbox := fmt.Sprintf("/Type /XObject /Subtype /Form /BBox [0 0 %g %g]", width, height)
		onObj, offObj := b.alloc(), b.alloc()
		b.set(onObj, stream(bbox, fmt.Sprintf("0 g 1 1 %g %g re f", width-2, height-2)))
		b.set(offObj, stream(bbox, ""))
		d += fmt.Sprintf(" /AP << /N << /%s %d 0 R /Off %d 0 R >> >> /AS /Off", on, onObj, offObj)
	}
	return d + " >>"
}

// WriteFile writes the built PDF to path
func WriteFile(path string, pages ...Page) error {
	return os.WriteFile(path, Build(pages...), 0o644)
}
