// Package pipeline wires extraction, detection, classification,
// reconciliation, merging, persistence and overlay writing into one
// explicitly constructed Processor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/a3tai/mcp-form-autofill/internal/config"
	"github.com/a3tai/mcp-form-autofill/internal/detect"
	"github.com/a3tai/mcp-form-autofill/internal/form"
	"github.com/a3tai/mcp-form-autofill/internal/intelligence"
	"github.com/a3tai/mcp-form-autofill/internal/merge"
	"github.com/a3tai/mcp-form-autofill/internal/ocr"
	"github.com/a3tai/mcp-form-autofill/internal/overlay"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
	"github.com/a3tai/mcp-form-autofill/internal/pdf/extraction"
	"github.com/a3tai/mcp-form-autofill/internal/reconcile"
	"github.com/a3tai/mcp-form-autofill/internal/store"
)

// ErrNoStore is returned by operations that need the document store when
// the processor runs without one.
var ErrNoStore = errors.New("document store not configured")

// detector names used in reports for failures outside the strategies
const (
	rasterizerName = "rasterizer"
	ocrName        = "ocr"
	storeName      = "store"
)

// Processor owns every long-lived component of the service. Nothing is
// shared between runs except read-only configuration, the classifier and
// the store; each Process call builds a fresh layout.
type Processor struct {
	cfg        *config.Config
	logger     *logrus.Logger
	log        *logrus.Entry
	templates  *intelligence.TemplateStore
	classifier *intelligence.DocumentClassifier
	reconciler *reconcile.Reconciler
	merger     *merge.Engine
	writer     *overlay.Writer
	store      *store.Store
	ocr        detect.WordReader
	ocrClient  *ocr.Client
}

// New builds a processor from configuration. The store is opened when
// cfg.Store.Path is set; OCR is enabled when configured and compiled in.
func New(cfg *config.Config, logger *logrus.Logger) (*Processor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := &Processor{
		cfg:        cfg,
		logger:     logger,
		log:        logger.WithField("component", "pipeline"),
		reconciler: reconcile.New(cfg.Zoom),
		merger: merge.New(merge.Config{
			Threshold:                    cfg.Merge.Threshold,
			SuppressGeometricWithWidgets: cfg.Merge.SuppressGeometricWithWidgets,
		}),
		writer: overlay.NewWriter(logger),
	}

	p.templates = intelligence.NewTemplateStore()
	if cfg.Classifier.TemplatesPath != "" {
		ts, err := intelligence.LoadTemplateStore(cfg.Classifier.TemplatesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load templates: %w", err)
		}
		p.templates = ts
	}

	ccfg := intelligence.DefaultClassifierConfig()
	ccfg.ModelPath = cfg.Classifier.ModelPath
	p.classifier = intelligence.NewDocumentClassifier(ccfg, p.templates, logger)

	if _, err := detect.Strategies(cfg.Detect.Strategies, detect.DefaultOptions()); err != nil {
		return nil, err
	}

	if cfg.OCR.Enabled {
		client, err := ocr.New(ocr.Config{Language: cfg.OCR.Language, MinConfidence: cfg.OCR.MinConfidence})
		switch {
		case err == nil:
			p.ocrClient = client
			p.ocr = client
		case errors.Is(err, ocr.ErrOCRNotEnabled):
			p.log.Debug("OCR not compiled in; scans rely on raster detectors only")
		default:
			p.log.WithError(err).Warn("OCR unavailable; continuing without it")
		}
	}

	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.ResolvePath(cfg.Store.Path), logger)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.store = st
	}
	return p, nil
}

// Close releases the store and the OCR engine
func (p *Processor) Close() error {
	var errs []error
	if p.ocrClient != nil {
		errs = append(errs, p.ocrClient.Close())
		p.ocrClient = nil
	}
	if p.store != nil {
		errs = append(errs, p.store.Close())
		p.store = nil
	}
	return errors.Join(errs...)
}

// Classifier returns the document classifier
func (p *Processor) Classifier() *intelligence.DocumentClassifier {
	return p.classifier
}

// pageOutput is the per-page result of a worker
type pageOutput struct {
	raw    []form.Field
	merged []form.Field
	errs   []*pdferrors.ProcessingError
}

// Process opens a document, detects and merges its fields and stores the
// resulting layout. Only a FormatError is returned as an error; detector,
// reconciliation and storage failures are recorded in the report and the
// layout holds whatever survived.
func (p *Processor) Process(ctx context.Context, path string) (*form.DocumentLayout, *pdferrors.Report, error) {
	start := time.Now()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	doc, err := extraction.Open(ctx, path, extraction.Options{
		Zoom:          p.cfg.Zoom,
		MaxFileSize:   p.cfg.MaxFileSize,
		RasterCommand: p.cfg.Raster.Command,
		Logger:        p.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	report := pdferrors.NewReport(path)
	fullText := doc.FullText()
	cls := p.classifier.ClassifyDocument(fullText)
	if cls.FallbackUsed() {
		report.Add(pdferrors.NewFallbackNotice(cls.FallbackReason))
	}

	runner, err := p.runnerFor(cls.Type)
	if err != nil {
		return nil, nil, err
	}

	outputs := make([]pageOutput, len(doc.Pages))
	workers := pool.New().WithMaxGoroutines(p.workers())
	for i := range doc.Pages {
		workers.Go(func() {
			outputs[i] = p.processPage(ctx, doc, i, runner, cls.Type)
		})
	}
	workers.Wait()

	layout := &form.DocumentLayout{
		ID:                     uuid.NewString(),
		Title:                  doc.Title,
		SourcePath:             path,
		Format:                 doc.Format,
		Zoom:                   doc.Zoom(),
		Pages:                  make([]form.Page, len(doc.Pages)),
		Fields:                 make([]form.Field, 0),
		FullText:               fullText,
		DocumentType:           string(cls.Type),
		DocumentTypeConfidence: cls.Confidence,
		ClassificationMethod:   cls.Method,
		CreatedAt:              time.Now().UTC(),
	}
	for i, out := range outputs {
		layout.Pages[i] = doc.Pages[i]
		layout.Pages[i].RawFields = out.raw
		layout.Fields = append(layout.Fields, out.merged...)
		for _, e := range out.errs {
			report.Add(e)
		}
	}

	if p.store != nil {
		if err := p.store.SaveDocument(ctx, layout); err != nil {
			p.log.WithError(err).Warn("Failed to store document")
			report.Add(pdferrors.WrapError(pdferrors.ErrorTypeUnknown, "document not stored", err).WithDetector(storeName))
		}
	}

	errCount, noticeCount := report.Count()
	p.log.WithFields(logrus.Fields{
		"document_id":   layout.ID,
		"file":          path,
		"pages":         len(layout.Pages),
		"fields":        len(layout.Fields),
		"document_type": layout.DocumentType,
		"errors":        errCount,
		"notices":       noticeCount,
		"duration":      time.Since(start),
	}).Info("Document processed")
	return layout, report, nil
}

func (p *Processor) workers() int {
	if p.cfg.Detect.Workers > 0 {
		return p.cfg.Detect.Workers
	}
	return 1
}

// runnerFor builds the strategy list for one run; field labels are typed
// in the context of the run's document type.
func (p *Processor) runnerFor(docType intelligence.DocumentType) (*detect.Runner, error) {
	opts := detect.DefaultOptions()
	opts.Classify = func(label string) form.FieldType {
		return p.classifier.ClassifyField(label, docType).Type
	}
	opts.OCR = p.ocr
	opts.MinWhitespacePx = float64(p.cfg.Detect.MinWhitespacePx)
	opts.BlankMeanMin = p.cfg.Detect.BlankMeanMin
	opts.DarkRatioMax = p.cfg.Detect.DarkRatioMax

	strategies, err := detect.Strategies(p.cfg.Detect.Strategies, opts)
	if err != nil {
		return nil, err
	}
	return detect.NewRunner(strategies, p.logger), nil
}

func (p *Processor) processPage(ctx context.Context, doc *extraction.Document, i int, runner *detect.Runner, docType intelligence.DocumentType) pageOutput {
	var out pageOutput
	page := doc.Pages[i]
	in := &detect.Input{Page: page, Zoom: doc.Zoom()}

	// pages without a text layer are scans; their raster feeds the leader
	// detector and OCR even when no strategy requires it
	if runner.NeedsRaster() || len(page.Spans) == 0 {
		raster, err := doc.Raster(ctx, i)
		if err != nil {
			out.errs = append(out.errs, pdferrors.NewDetectorError(rasterizerName, i, err))
		} else {
			in.Raster = raster
		}
	}
	if p.ocr != nil && in.Raster != nil && len(page.Words) == 0 {
		words, err := p.ocr.Words(ctx, in.Raster)
		if err != nil {
			out.errs = append(out.errs, pdferrors.NewDetectorError(ocrName, i, err))
		} else {
			in.OCRWords = words
		}
	}

	res := runner.Run(ctx, in)
	out.errs = append(out.errs, res.Errors...)

	fields, rerrs := p.reconciler.Page(page, res.Candidates)
	out.errs = append(out.errs, rerrs...)
	for k := range fields {
		fields[k].ValidationRules = p.classifier.ValidationRules(docType, fields[k].FieldType)
	}
	out.raw = fields

	merged := p.merger.MergePage(fields)
	out.merged = merged.Fields
	if len(merged.Dropped) > 0 {
		p.log.WithFields(logrus.Fields{
			"page":    i,
			"kept":    len(merged.Fields),
			"dropped": len(merged.Dropped),
		}).Debug("Merged page candidates")
	}
	return out
}

// Fill applies values to a stored document and writes the result to
// outPath. Fields without a value in values use their stored slots.
func (p *Processor) Fill(ctx context.Context, docID string, values overlay.Values, outPath string) (*overlay.Manifest, error) {
	layout, err := p.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	return p.FillLayout(ctx, layout, values, outPath)
}

// FillLayout applies values to a layout that is not necessarily stored
func (p *Processor) FillLayout(ctx context.Context, layout *form.DocumentLayout, values overlay.Values, outPath string) (*overlay.Manifest, error) {
	return p.writer.Apply(ctx, layout, values, outPath)
}

// GetDocument loads a stored layout with its current value slots
func (p *Processor) GetDocument(ctx context.Context, docID string) (*form.DocumentLayout, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	return p.store.GetDocument(ctx, docID)
}

// ListDocuments lists stored documents
func (p *Processor) ListDocuments(ctx context.Context) ([]store.DocumentSummary, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	return p.store.ListDocuments(ctx)
}

// SetFieldValue records a user or AI value for one field of a stored
// document. An AI value never replaces the user's.
func (p *Processor) SetFieldValue(ctx context.Context, docID, fieldID, value string, source store.ValueSource) (form.ValueSlots, error) {
	if p.store == nil {
		return form.ValueSlots{}, ErrNoStore
	}
	return p.store.SetFieldValue(ctx, docID, fieldID, value, source)
}

// ClassifyDocument returns the document type of a text. It never fails.
func (p *Processor) ClassifyDocument(text string) intelligence.DocumentClassification {
	return p.classifier.ClassifyDocument(text)
}

// ClassifyFile classifies the text layer of a document without detecting
// fields.
func (p *Processor) ClassifyFile(ctx context.Context, path string) (intelligence.DocumentClassification, error) {
	doc, err := extraction.Open(ctx, path, extraction.Options{
		Zoom:        p.cfg.Zoom,
		MaxFileSize: p.cfg.MaxFileSize,
		Logger:      p.logger,
	})
	if err != nil {
		return intelligence.DocumentClassification{}, err
	}
	return p.classifier.ClassifyDocument(doc.FullText()), nil
}

// AddSamples stores training samples and returns the stored total
func (p *Processor) AddSamples(ctx context.Context, samples []intelligence.TrainingSample) (int, error) {
	if p.store == nil {
		return 0, ErrNoStore
	}
	return p.store.AddSamples(ctx, samples)
}

// Train fits the classifier. With a store, samples are appended to the
// stored ones and training uses all of them; without one only samples are
// used. Too few samples skip training and keep the current model.
func (p *Processor) Train(ctx context.Context, samples []intelligence.TrainingSample) (intelligence.TrainingResult, error) {
	all := samples
	if p.store != nil {
		if len(samples) > 0 {
			if _, err := p.store.AddSamples(ctx, samples); err != nil {
				return intelligence.TrainingResult{}, err
			}
		}
		stored, err := p.store.Samples(ctx)
		if err != nil {
			return intelligence.TrainingResult{}, err
		}
		all = stored
	}
	return p.classifier.Train(ctx, all, p.cfg.Classifier.MinSamples)
}

// Templates returns the document templates
func (p *Processor) Templates() []intelligence.DocumentTemplate {
	return p.templates.All()
}

// UpdateTemplate replaces a document template and saves the template file
// when one is configured.
func (p *Processor) UpdateTemplate(t intelligence.DocumentTemplate) error {
	if err := p.templates.Update(t); err != nil {
		return err
	}
	if path := p.cfg.Classifier.TemplatesPath; path != "" {
		if err := p.templates.Save(path); err != nil {
			return fmt.Errorf("failed to save templates: %w", err)
		}
	}
	p.log.WithField("document_type", t.DocumentType).Info("Template updated")
	return nil
}
