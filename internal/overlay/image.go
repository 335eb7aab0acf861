package overlay

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
	"github.com/a3tai/mcp-form-autofill/internal/pdf/extraction"
)

// Drawn text layout in page units
const (
	nominalFontSize = 12.0
	textInset       = 5.0
	minFontSize     = 4.0
	// baselineDrop is the distance from the rect's middle to the baseline
	// for nominal size text
	baselineDrop = 4.0
)

var (
	regularOnce sync.Once
	regularFont *opentype.Font
	regularErr  error
)

func loadRegular() (*opentype.Font, error) {
	regularOnce.Do(func() {
		regularFont, regularErr = opentype.Parse(goregular.TTF)
	})
	return regularFont, regularErr
}

func (w *Writer) applyImage(ctx context.Context, layout *form.DocumentLayout, assignments []assignment, outPath string, m *Manifest) error {
	format, err := imaging.FormatFromFilename(outPath)
	if err != nil {
		return fmt.Errorf("unsupported output image type: %w", err)
	}
	src, err := extraction.LoadImage(layout.SourcePath)
	if err != nil {
		return pdferrors.NewFormatError(layout.SourcePath, err)
	}
	fnt, err := loadRegular()
	if err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}

	zoom := layout.Zoom
	if zoom <= 0 {
		zoom = extraction.DefaultZoom
	}
	canvas := imaging.Clone(src)

	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := drawValue(canvas, fnt, a.field, a.value, zoom); err != nil {
			m.fail(a.field.ID, err)
			continue
		}
		m.Filled = append(m.Filled, a.field.ID)
	}

	return writeAtomic(outPath, func(f *os.File) error {
		if err := imaging.Encode(f, canvas, format); err != nil {
			return fmt.Errorf("failed to encode image: %w", err)
		}
		return nil
	})
}

// drawValue renders a value left-aligned in the field rectangle, clipped to
// it. The font shrinks from the nominal size to fit the rectangle height.
func drawValue(canvas *image.NRGBA, fnt *opentype.Font, f form.Field, value string, zoom float64) error {
	if !f.Rect.Valid() {
		return fmt.Errorf("invalid rectangle %+v", f.Rect)
	}
	if f.IsBoolean() {
		on, err := ParseBool(value)
		if err != nil {
			return err
		}
		if !on {
			return nil
		}
		value = "X"
	}
	if value == "" {
		return nil
	}

	px := image.Rect(
		int(math.Floor(f.Rect.X*zoom)), int(math.Floor(f.Rect.Y*zoom)),
		int(math.Ceil(f.Rect.Right()*zoom)), int(math.Ceil(f.Rect.Bottom()*zoom)),
	)
	clip := px.Intersect(canvas.Bounds())
	if clip.Empty() {
		return fmt.Errorf("rectangle %+v lies outside the image", f.Rect)
	}

	size := math.Min(nominalFontSize, f.Rect.Height-2)
	size = math.Max(size, minFontSize)
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    size * zoom,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("failed to size font: %w", err)
	}
	defer face.Close()

	inset := math.Min(textInset, f.Rect.Width/4)
	baseline := f.Rect.Y + f.Rect.Height/2 + baselineDrop*size/nominalFontSize
	d := &font.Drawer{
		Dst:  canvas.SubImage(clip).(*image.NRGBA),
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(int(math.Round((f.Rect.X+inset)*zoom)), int(math.Round(baseline*zoom))),
	}
	d.DrawString(value)
	return nil
}
