package form

import (
	"sort"
	"time"
)

// DocumentFormat is the kind of input a layout was built from
type DocumentFormat string

const (
	FormatPDF   DocumentFormat = "pdf"
	FormatImage DocumentFormat = "image"
)

// DocumentLayout is the result of one processing run. Every run builds a
// fresh layout; layouts are never shared between runs.
type DocumentLayout struct {
	ID                     string         `json:"id"`
	Title                  string         `json:"title"`
	SourcePath             string         `json:"source_path"`
	Format                 DocumentFormat `json:"format"`
	Zoom                   float64        `json:"zoom"`
	Pages                  []Page         `json:"pages"`
	Fields                 []Field        `json:"fields"`
	FullText               string         `json:"full_text"`
	DocumentType           string         `json:"document_type"`
	DocumentTypeConfidence float64        `json:"document_type_confidence"`
	ClassificationMethod   string         `json:"classification_method"`
	CreatedAt              time.Time      `json:"created_at"`
}

// Page holds the per-page extraction output and the reconciled but
// unmerged fields of every detector.
type Page struct {
	Index        int         `json:"index"`
	Width        float64     `json:"width"`
	Height       float64     `json:"height"`
	RasterWidth  int         `json:"raster_width"`
	RasterHeight int         `json:"raster_height"`
	Text         string      `json:"text"`
	Spans        []TextSpan  `json:"-"`
	Words        []WordBox   `json:"-"`
	Widgets      []Candidate `json:"-"`
	RawFields    []Field     `json:"raw_fields"`
}

// HasWidgets reports whether the page carries native form widgets
func (p Page) HasWidgets() bool {
	return len(p.Widgets) > 0
}

// TextSpan is one line of positioned text in page units. CharX and CharW
// hold the left edge and advance width of every rune of Text when the
// source provides glyph positions; they are empty otherwise.
type TextSpan struct {
	Text     string
	X        float64
	Y        float64
	Width    float64
	Height   float64
	FontSize float64
	CharX    []float64
	CharW    []float64
}

// HasGlyphPositions reports whether per-rune positions are available
func (s TextSpan) HasGlyphPositions() bool {
	return len(s.CharX) > 0 && len(s.CharX) == len([]rune(s.Text)) && len(s.CharW) == len(s.CharX)
}

// WordBox is a recognized word with its box. Box is raster space for OCR
// output and native space for words taken from the PDF text layer.
type WordBox struct {
	Text       string
	Box        RawRect
	Confidence float64
	Line       int
}

// FieldsOnPage returns the merged fields of one page in output order
func (d *DocumentLayout) FieldsOnPage(pageIndex int) []Field {
	out := make([]Field, 0)
	for _, f := range d.Fields {
		if f.PageIndex == pageIndex {
			out = append(out, f)
		}
	}
	return out
}

// FieldByID looks a merged field up by id
func (d *DocumentLayout) FieldByID(id string) (*Field, bool) {
	for i := range d.Fields {
		if d.Fields[i].ID == id {
			return &d.Fields[i], true
		}
	}
	return nil, false
}

// PageSize returns the page dimensions in page units
func (d *DocumentLayout) PageSize(pageIndex int) (width, height float64, ok bool) {
	if pageIndex < 0 || pageIndex >= len(d.Pages) {
		return 0, 0, false
	}
	p := d.Pages[pageIndex]
	return p.Width, p.Height, true
}

// SortFields orders fields by page, then top-to-bottom, then left-to-right
func SortFields(fields []Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i], fields[j]
		if a.PageIndex != b.PageIndex {
			return a.PageIndex < b.PageIndex
		}
		if a.Rect.Y != b.Rect.Y {
			return a.Rect.Y < b.Rect.Y
		}
		return a.Rect.X < b.Rect.X
	})
}
