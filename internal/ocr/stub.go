//go:build !ocr

package ocr

import (
	"context"
	"image"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// Client is the recognizer used when OCR support is not compiled in
type Client struct{}

// New returns ErrOCRNotEnabled
func New(cfg Config) (*Client, error) {
	return nil, ErrOCRNotEnabled
}

// Close is a no-op; it is safe on a nil client
func (c *Client) Close() error {
	return nil
}

// Words returns ErrOCRNotEnabled
func (c *Client) Words(ctx context.Context, img image.Image) ([]form.WordBox, error) {
	return nil, ErrOCRNotEnabled
}
