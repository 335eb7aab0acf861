//go:build ocr

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// Client wraps a Tesseract handle. Tesseract handles are not safe for
// concurrent use, so recognition is serialized.
type Client struct {
	mu     sync.Mutex
	cfg    Config
	client *gosseract.Client
}

// New creates a Tesseract-backed recognizer
func New(cfg Config) (*Client, error) {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(cfg.Language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language %q: %w", cfg.Language, err)
	}
	return &Client{cfg: cfg, client: client}, nil
}

// Close releases the Tesseract handle
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Words runs word-level recognition on img
func (c *Client) Words(ctx context.Context, img image.Image) ([]form.WordBox, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode raster: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	boxes, err := c.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	lines := lineNumbers{}
	words := make([]form.WordBox, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" || b.Confidence <= c.cfg.MinConfidence {
			continue
		}
		r := b.Box
		words = append(words, form.WordBox{
			Text:       text,
			Box:        form.RasterRect{X: float64(r.Min.X), Y: float64(r.Min.Y), Width: float64(r.Dx()), Height: float64(r.Dy())},
			Confidence: b.Confidence / 100,
			Line:       lines.index(lineKey{b.BlockNum, b.ParNum, b.LineNum}),
		})
	}
	return words, nil
}
