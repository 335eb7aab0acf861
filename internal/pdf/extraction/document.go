package extraction

import (
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
)

// DefaultZoom is the raster scale factor relative to page units
const DefaultZoom = 3.0

// Options configures Open
type Options struct {
	Zoom          float64
	MaxFileSize   int64
	RasterCommand string
	Logger        *logrus.Logger
}

// Document is an opened input: page geometry, text layer and native
// widgets, plus access to page rasters.
type Document struct {
	Path   string
	Format form.DocumentFormat
	Title  string
	Pages  []form.Page

	zoom       float64
	rasterizer *Rasterizer
	image      image.Image
}

// Zoom returns the raster scale factor of this document
func (d *Document) Zoom() float64 {
	return d.zoom
}

// FullText returns the text of all pages separated by blank lines
func (d *Document) FullText() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Image returns the decoded input of an image document, nil for PDFs
func (d *Document) Image() image.Image {
	return d.image
}

// Raster returns the grayscale raster of a page at the document zoom
func (d *Document) Raster(ctx context.Context, pageIndex int) (*image.Gray, error) {
	if pageIndex < 0 || pageIndex >= len(d.Pages) {
		return nil, fmt.Errorf("page %d out of range", pageIndex)
	}
	if d.Format == form.FormatImage {
		return ToGray(d.image), nil
	}
	return d.rasterizer.Render(ctx, d.Path, pageIndex)
}

// Open validates and opens a PDF or image input. Any failure to read the
// input is a FormatError; a PDF whose text layer cannot be decoded still
// opens, with empty page text.
func Open(ctx context.Context, path string, opts Options) (*Document, error) {
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultZoom
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	format, err := NewValidator(opts.MaxFileSize).Validate(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := &Document{
		Path:       path,
		Format:     format,
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		zoom:       opts.Zoom,
		rasterizer: &Rasterizer{Command: opts.RasterCommand, Zoom: opts.Zoom},
	}

	if format == form.FormatImage {
		if err := doc.openImage(); err != nil {
			return nil, pdferrors.NewFormatError(path, err)
		}
		return doc, nil
	}
	if err := doc.openPDF(logger); err != nil {
		return nil, pdferrors.NewFormatError(path, err)
	}
	return doc, nil
}

func (d *Document) openImage() error {
	img, err := LoadImage(d.Path)
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("image has no pixels")
	}
	d.image = img
	d.Pages = []form.Page{{
		Index:        0,
		Width:        float64(b.Dx()) / d.zoom,
		Height:       float64(b.Dy()) / d.zoom,
		RasterWidth:  b.Dx(),
		RasterHeight: b.Dy(),
	}}
	return nil
}

// ReadContext parses a PDF into a pdfcpu context in relaxed mode
func ReadContext(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}
	return ctx, nil
}

func (d *Document) openPDF(logger *logrus.Logger) error {
	pctx, err := ReadContext(d.Path)
	if err != nil {
		return err
	}
	if pctx.PageCount == 0 {
		return fmt.Errorf("document has no pages")
	}

	dims, err := pctx.PageDims()
	if err != nil {
		return fmt.Errorf("failed to read page sizes: %w", err)
	}
	heights := make([]float64, len(dims))
	d.Pages = make([]form.Page, len(dims))
	for i, dim := range dims {
		heights[i] = dim.Height
		d.Pages[i] = form.Page{
			Index:        i,
			Width:        dim.Width,
			Height:       dim.Height,
			RasterWidth:  int(math.Round(dim.Width * d.zoom)),
			RasterHeight: int(math.Round(dim.Height * d.zoom)),
		}
	}

	widgets, err := ReadWidgets(pctx)
	if err != nil {
		return err
	}
	for i, cands := range widgetCandidates(pctx, widgets, heights) {
		if i < len(d.Pages) {
			d.Pages[i].Widgets = cands
		}
	}

	spans, err := readTextLayer(d.Path, heights)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"file":  d.Path,
			"error": err.Error(),
		}).Warn("Text layer unavailable; continuing without text")
		return nil
	}
	for i := range d.Pages {
		d.Pages[i].Spans = spans[i]
		d.Pages[i].Text = pageText(spans[i])
		d.Pages[i].Words = spanWords(spans[i])
	}
	return nil
}
