// Package ocr recognizes words on page rasters. Recognition is backed by
// Tesseract via gosseract when built with the "ocr" tag:
//
//	go build -tags ocr ./...
//
// Without the tag every constructor returns ErrOCRNotEnabled and the
// pipeline runs on the PDF text layer alone.
package ocr

import (
	"context"
	"errors"
	"image"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// ErrOCRNotEnabled is returned when OCR support was not compiled in
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// DefaultMinConfidence drops words Tesseract is unsure about (0-100 scale)
const DefaultMinConfidence = 55

// Config configures a recognizer
type Config struct {
	Language      string
	MinConfidence float64
}

// DefaultConfig returns English recognition with the default cut-off
func DefaultConfig() Config {
	return Config{Language: "eng", MinConfidence: DefaultMinConfidence}
}

// Recognizer returns the words found on a raster with raster-space boxes
type Recognizer interface {
	Words(ctx context.Context, img image.Image) ([]form.WordBox, error)
	Close() error
}

// lineKey identifies a text line in Tesseract's layout hierarchy
type lineKey struct {
	block, par, line int
}

// lineNumbers assigns sequential line indexes in first-seen order
type lineNumbers map[lineKey]int

func (l lineNumbers) index(k lineKey) int {
	if i, ok := l[k]; ok {
		return i
	}
	l[k] = len(l)
	return l[k]
}
