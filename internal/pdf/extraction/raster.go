package extraction

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultRasterCommand renders PDF pages to PNG
const DefaultRasterCommand = "pdftoppm"

// Rasterizer renders single PDF pages at the pipeline zoom factor
type Rasterizer struct {
	Command string
	Zoom    float64
}

// DPI returns the render resolution: 72 page units per inch times zoom
func (r *Rasterizer) DPI() int {
	return int(math.Round(72 * r.Zoom))
}

// Available reports whether the render command can be found
func (r *Rasterizer) Available() bool {
	_, err := exec.LookPath(r.command())
	return err == nil
}

func (r *Rasterizer) command() string {
	if r.Command == "" {
		return DefaultRasterCommand
	}
	return r.Command
}

// Render returns page pageIndex (0-based) of the PDF at path as grayscale
func (r *Rasterizer) Render(ctx context.Context, path string, pageIndex int) (*image.Gray, error) {
	dir, err := os.MkdirTemp("", "formfill-raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create raster directory: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	page := strconv.Itoa(pageIndex + 1)
	cmd := exec.CommandContext(ctx, r.command(),
		"-r", strconv.Itoa(r.DPI()),
		"-f", page, "-l", page,
		"-png", "-gray", "-singlefile",
		path, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s failed on page %d: %w: %s", r.command(), pageIndex, err, strings.TrimSpace(string(out)))
	}

	img, err := imaging.Open(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered page %d: %w", pageIndex, err)
	}
	return ToGray(img), nil
}

// LoadImage decodes an image input, applying EXIF orientation
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ToGray converts any image to 8-bit grayscale with a zero origin
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), imaging.Grayscale(img), image.Point{}, draw.Src)
	return gray
}
