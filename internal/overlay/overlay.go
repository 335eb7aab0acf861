// Package overlay writes field values back into a document. Native PDF
// widgets are set in place, other PDF fields get a synthesized widget and
// image documents get the value drawn into the field rectangle.
package overlay

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
)

// Values maps field ids to values. Strings, booleans and numbers are
// accepted; booleans are meant for checkbox and radio fields.
type Values map[string]any

// Failure is a field that could not be filled
type Failure struct {
	FieldID string `json:"field_id"`
	Reason  string `json:"reason"`
}

// Manifest reports which fields were written
type Manifest struct {
	OutputPath string                       `json:"output_path"`
	Filled     []string                     `json:"filled"`
	Unfilled   []Failure                    `json:"unfilled"`
	Errors     []*pdferrors.ProcessingError `json:"-"`
}

func (m *Manifest) fail(fieldID string, err error) {
	m.Unfilled = append(m.Unfilled, Failure{FieldID: fieldID, Reason: err.Error()})
	m.Errors = append(m.Errors, pdferrors.NewWriteError(fieldID, err))
}

// Writer applies values to documents
type Writer struct {
	logger *logrus.Entry
}

// NewWriter creates a writer. A nil logger discards output.
func NewWriter(logger *logrus.Logger) *Writer {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Writer{logger: logger.WithField("component", "overlay")}
}

// assignment is a field paired with the value to write
type assignment struct {
	field form.Field
	value string
}

// Apply writes values into a copy of the layout's source document at
// outPath. Fields without an entry in values fall back to their stored
// value slots. A field that cannot be filled is recorded in the manifest
// and the rest are still written; only failure to read the source or to
// write the output is returned as an error. The source is never modified,
// so repeating a call with the same inputs yields the same output.
func (w *Writer) Apply(ctx context.Context, layout *form.DocumentLayout, values Values, outPath string) (*Manifest, error) {
	if layout == nil {
		return nil, fmt.Errorf("layout is nil")
	}
	if outPath == "" {
		outPath = DefaultOutputPath(layout.SourcePath)
	}
	if same, _ := samePath(layout.SourcePath, outPath); same {
		return nil, fmt.Errorf("output path %s would overwrite the source document", outPath)
	}

	m := &Manifest{OutputPath: outPath, Filled: []string{}, Unfilled: []Failure{}}
	assignments := w.resolve(layout, values, m)

	var err error
	switch layout.Format {
	case form.FormatPDF:
		err = w.applyPDF(ctx, layout, assignments, outPath, m)
	case form.FormatImage:
		err = w.applyImage(ctx, layout, assignments, outPath, m)
	default:
		err = fmt.Errorf("unsupported document format %q", layout.Format)
	}
	if err != nil {
		return nil, err
	}

	for _, e := range m.Errors {
		w.logger.WithFields(logrus.Fields{
			"field_id": e.FieldID,
			"error":    e.Error(),
		}).Warn("Field not filled")
	}
	w.logger.WithFields(logrus.Fields{
		"output":   outPath,
		"filled":   len(m.Filled),
		"unfilled": len(m.Unfilled),
	}).Info("Values applied")
	return m, nil
}

// resolve pairs fields with values in layout order. Ids that name no field
// are reported as unfilled.
func (w *Writer) resolve(layout *form.DocumentLayout, values Values, m *Manifest) []assignment {
	known := make(map[string]bool, len(layout.Fields))
	out := make([]assignment, 0, len(layout.Fields))
	for _, f := range layout.Fields {
		known[f.ID] = true
		raw, ok := values[f.ID]
		if !ok {
			if eff := f.Values.Effective(); eff != "" {
				out = append(out, assignment{field: f, value: eff})
			}
			continue
		}
		s, err := cast.ToStringE(raw)
		if err != nil {
			m.fail(f.ID, fmt.Errorf("unsupported value type %T", raw))
			continue
		}
		out = append(out, assignment{field: f, value: s})
	}

	unknown := make([]string, 0)
	for id := range values {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		m.fail(id, fmt.Errorf("no field with id %q", id))
	}
	return out
}

// ParseBool reads checkbox-style values
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "t", "on", "1", "x", "checked", "✓", "✔":
		return true, nil
	case "no", "n", "false", "f", "off", "0", "", "unchecked":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a yes/no value", s)
}

// DefaultOutputPath places "<name>_filled<ext>" next to the source
func DefaultOutputPath(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + "_filled" + ext
}

func samePath(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ia, ib), nil
}

// writeAtomic writes through a temp file renamed into place
func writeAtomic(path string, write func(f *os.File) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
