package intelligence

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// ClassifierConfig configures a DocumentClassifier
type ClassifierConfig struct {
	// ModelPath is where trained models are loaded from and saved to.
	ModelPath string
	// MinConfidence is the statistical probability below which the
	// keyword fallback answers instead.
	MinConfidence float64
	// FieldMinConfidence gates statistical field-type predictions.
	FieldMinConfidence float64
	MaxFeatures        int
	CacheSize          int
}

// DefaultClassifierConfig returns the default classifier configuration
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MinConfidence:      0.4,
		FieldMinConfidence: 0.6,
		MaxFeatures:        DefaultMaxFeatures,
		CacheSize:          256,
	}
}

// FieldClassification is the typed result for one label
type FieldClassification struct {
	Type       form.FieldType `json:"type"`
	Confidence float64        `json:"confidence"`
	Source     string         `json:"source"`
}

// Field classification sources
const (
	SourceTaxonomy    = "taxonomy"
	SourceTemplate    = "template"
	SourceStatistical = "statistical"
	SourceDefault     = "default"
)

type keywordMatcher struct {
	docType  DocumentType
	patterns []*regexp.Regexp
}

// DocumentClassifier classifies documents and field labels. The trained
// model is swapped under a write lock; classification only reads it.
type DocumentClassifier struct {
	cfg       ClassifierConfig
	taxonomy  *Taxonomy
	templates *TemplateStore
	keywords  []keywordMatcher
	cache     *lruCache[string, DocumentClassification]
	logger    *logrus.Entry

	mu    sync.RWMutex
	model *Model
}

// NewDocumentClassifier creates a classifier. A model at cfg.ModelPath is
// loaded when present; a missing or unreadable model leaves the keyword
// fallback in charge.
func NewDocumentClassifier(cfg ClassifierConfig, templates *TemplateStore, logger *logrus.Logger) *DocumentClassifier {
	defaults := DefaultClassifierConfig()
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = defaults.MinConfidence
	}
	if cfg.FieldMinConfidence <= 0 {
		cfg.FieldMinConfidence = defaults.FieldMinConfidence
	}
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = defaults.MaxFeatures
	}
	if templates == nil {
		templates = NewTemplateStore()
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	dc := &DocumentClassifier{
		cfg:       cfg,
		taxonomy:  DefaultTaxonomy(),
		templates: templates,
		keywords:  compileKeywordRules(getDefaultKeywordRules()),
		cache:     newLRUCache[string, DocumentClassification](cfg.CacheSize),
		logger:    logger.WithField("component", "classifier"),
	}

	if cfg.ModelPath != "" {
		m, err := LoadModel(cfg.ModelPath)
		switch {
		case err == nil:
			dc.model = m
			dc.logger.WithField("model_path", cfg.ModelPath).Info("Loaded trained classifier model")
		case errors.Is(err, os.ErrNotExist):
			dc.logger.WithField("model_path", cfg.ModelPath).Debug("No trained model yet")
		default:
			dc.logger.WithError(err).Warn("Ignoring unreadable classifier model")
		}
	}
	return dc
}

func compileKeywordRules(rules []KeywordRule) []keywordMatcher {
	out := make([]keywordMatcher, 0, len(rules))
	for _, r := range rules {
		m := keywordMatcher{docType: r.DocumentType}
		for _, kw := range r.Keywords {
			m.patterns = append(m.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		out = append(out, m)
	}
	return out
}

// Templates returns the template store consulted for field typing
func (dc *DocumentClassifier) Templates() *TemplateStore {
	return dc.templates
}

// HasModel reports whether a trained model is loaded
func (dc *DocumentClassifier) HasModel() bool {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.model != nil
}

// SetModel installs a trained model and invalidates cached results
func (dc *DocumentClassifier) SetModel(m *Model) {
	dc.mu.Lock()
	dc.model = m
	dc.mu.Unlock()
	dc.cache.Clear()
}

// ClassifyDocument returns the document type of a full text. It never
// fails: when the statistical model is missing, unsure or broken, the
// keyword fallback answers, and text with no keyword hits is unknown with
// confidence 0.
func (dc *DocumentClassifier) ClassifyDocument(text string) (result DocumentClassification) {
	key := cacheKey(text)
	if cached, ok := dc.cache.Get(key); ok {
		return cached
	}

	defer func() {
		if r := recover(); r != nil {
			dc.logger.WithField("panic", r).Error("Document classifier panicked; using keyword fallback")
			result = dc.keywordFallback(text, fmt.Sprintf("statistical classifier failed: %v", r))
		}
		dc.cache.Put(key, result)
	}()

	if strings.TrimSpace(text) == "" {
		return dc.keywordFallback(text, "empty text")
	}

	dc.mu.RLock()
	model := dc.model
	dc.mu.RUnlock()

	if model == nil || !model.DocumentType.Ready() {
		return dc.keywordFallback(text, "no trained model")
	}

	label, prob, probs := model.DocumentType.Predict(text)
	if label == "" {
		return dc.keywordFallback(text, "no words known to the model")
	}
	if prob < dc.cfg.MinConfidence {
		return dc.keywordFallback(text, fmt.Sprintf("statistical confidence %.2f below %.2f", prob, dc.cfg.MinConfidence))
	}

	scores := make(map[DocumentType]float64, len(probs))
	for k, v := range probs {
		scores[DocumentType(k)] = v
	}
	return DocumentClassification{
		Type:        DocumentType(label),
		Confidence:  prob,
		Method:      MethodStatistical,
		Scores:      scores,
		ProcessedAt: time.Now(),
	}
}

// KeywordClassify scores every document type by keyword hits. Ties go to
// the earlier rule.
func (dc *DocumentClassifier) KeywordClassify(text string) DocumentClassification {
	return dc.keywordFallback(text, "")
}

func (dc *DocumentClassifier) keywordFallback(text, reason string) DocumentClassification {
	result := DocumentClassification{
		Type:           DocumentTypeUnknown,
		Method:         MethodKeywordFallback,
		FallbackReason: reason,
		Scores:         make(map[DocumentType]float64),
		ProcessedAt:    time.Now(),
	}
	lowered := NormalizeLabel(text)
	if lowered == "" {
		return result
	}

	bestHits := 0
	for _, m := range dc.keywords {
		hits := 0
		for _, p := range m.patterns {
			if p.MatchString(lowered) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		conf := float64(hits) / float64(len(m.patterns))
		if conf > FallbackConfidenceCap {
			conf = FallbackConfidenceCap
		}
		result.Scores[m.docType] = conf
		if hits > bestHits {
			bestHits = hits
			result.Type = m.docType
			result.Confidence = conf
		}
	}
	return result
}

// ClassifyField types a label in the context of a document type. The base
// taxonomy is consulted first, then the document's template, then the
// statistical field model. Anything else is plain text.
func (dc *DocumentClassifier) ClassifyField(label string, docType DocumentType) FieldClassification {
	if ft, ok := dc.taxonomy.match(NormalizeLabel(label)); ok {
		return FieldClassification{Type: ft, Confidence: 1, Source: SourceTaxonomy}
	}
	if ft, ok := dc.templates.MatchLabel(docType, label); ok {
		conf := 0.8
		if t, found := dc.templates.Get(docType); found && t.ConfidenceThreshold > 0 {
			conf = t.ConfidenceThreshold
		}
		return FieldClassification{Type: ft, Confidence: conf, Source: SourceTemplate}
	}
	if strings.TrimSpace(label) != "" {
		if fc, ok := dc.statisticalField(label); ok {
			return fc
		}
	}
	return FieldClassification{Type: form.FieldTypeText, Confidence: 0, Source: SourceDefault}
}

func (dc *DocumentClassifier) statisticalField(label string) (fc FieldClassification, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			dc.logger.WithField("panic", r).Warn("Field model panicked")
			fc, ok = FieldClassification{}, false
		}
	}()

	dc.mu.RLock()
	model := dc.model
	dc.mu.RUnlock()
	if model == nil || !model.FieldType.Ready() {
		return FieldClassification{}, false
	}
	predicted, prob, _ := model.FieldType.Predict(label)
	if predicted == "" || prob < dc.cfg.FieldMinConfidence {
		return FieldClassification{}, false
	}
	return FieldClassification{Type: form.FieldType(predicted), Confidence: prob, Source: SourceStatistical}, true
}

// ValidationRules returns the template rule names for a field type
func (dc *DocumentClassifier) ValidationRules(docType DocumentType, ft form.FieldType) []string {
	return dc.templates.ValidationRules(docType, ft)
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
