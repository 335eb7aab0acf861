package extraction

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true, ".gif": true,
}

// Validator checks that an input file can be processed before any parser
// touches it.
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a validator; maxFileSize <= 0 disables the size cap
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{maxFileSize: maxFileSize}
}

// Validate returns the input format of path or a FormatError
func (v *Validator) Validate(path string) (form.DocumentFormat, error) {
	format, err := v.validate(path)
	if err != nil {
		return "", pdferrors.NewFormatError(path, err)
	}
	return format, nil
}

func (v *Validator) validate(path string) (form.DocumentFormat, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return "", fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("file is empty: %s", path)
	}
	if v.maxFileSize > 0 && info.Size() > v.maxFileSize {
		return "", fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), v.maxFileSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open file: %w", err)
	}
	defer f.Close()

	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("cannot read file: %w", err)
	}
	head = head[:n]

	if bytes.Contains(head, []byte("%PDF-")) {
		return form.FormatPDF, nil
	}
	if imageExtensions[strings.ToLower(filepath.Ext(path))] {
		return form.FormatImage, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", fmt.Errorf("missing PDF header: %s", path)
	}
	return "", fmt.Errorf("unsupported file type: %s", path)
}
