package intelligence

import (
	"time"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// DocumentType represents the coarse category of a whole document
type DocumentType string

const (
	DocumentTypeUnknown     DocumentType = "unknown"
	DocumentTypeApplication DocumentType = "application_form"
	DocumentTypeContract    DocumentType = "contract"
	DocumentTypeInvoice     DocumentType = "invoice"
	DocumentTypeMedical     DocumentType = "medical_form"
	DocumentTypeLegal       DocumentType = "legal_document"
	DocumentTypeFinancial   DocumentType = "financial_form"
	DocumentTypeEducational DocumentType = "educational_form"
)

// Classification methods reported in DocumentClassification.Method
const (
	MethodStatistical     = "statistical"
	MethodKeywordFallback = "keyword_fallback"
)

// DocumentClassification is the result of document-type classification.
// FallbackReason is set whenever the keyword fallback answered.
type DocumentClassification struct {
	Type           DocumentType             `json:"type"`
	Confidence     float64                  `json:"confidence"`
	Method         string                   `json:"method"`
	FallbackReason string                   `json:"fallback_reason,omitempty"`
	Scores         map[DocumentType]float64 `json:"scores,omitempty"`
	ProcessedAt    time.Time                `json:"processed_at"`
}

// FallbackUsed reports whether the keyword fallback produced this result
func (c DocumentClassification) FallbackUsed() bool {
	return c.Method == MethodKeywordFallback
}

// TrainingSample is one labeled example for the statistical classifier
type TrainingSample struct {
	Text         string         `json:"text"`
	FieldType    form.FieldType `json:"field_type"`
	DocumentType DocumentType   `json:"document_type"`
	Context      string         `json:"context"`
	Confidence   float64        `json:"confidence"`
}

// TrainingResult reports the outcome of a training run. Skipped runs leave
// any previously trained model in place.
type TrainingResult struct {
	Skipped              bool      `json:"skipped"`
	Reason               string    `json:"reason,omitempty"`
	FieldTypeAccuracy    float64   `json:"field_type_accuracy"`
	DocumentTypeAccuracy float64   `json:"document_type_accuracy"`
	TrainingSamples      int       `json:"training_samples"`
	HoldoutSamples       int       `json:"holdout_samples"`
	ModelPath            string    `json:"model_path,omitempty"`
	TrainedAt            time.Time `json:"trained_at"`
}

// Metrics returns the flat metrics mapping exposed to callers
func (r TrainingResult) Metrics() map[string]interface{} {
	m := map[string]interface{}{
		"field_type_accuracy":    r.FieldTypeAccuracy,
		"document_type_accuracy": r.DocumentTypeAccuracy,
		"training_samples":       r.TrainingSamples,
	}
	if r.Skipped {
		m["skipped"] = true
		m["reason"] = r.Reason
	}
	return m
}

// DocumentTemplate configures field interpretation for one document type
type DocumentTemplate struct {
	DocumentType        DocumentType                `yaml:"document_type" json:"document_type"`
	Description         string                      `yaml:"description" json:"description"`
	FieldPatterns       map[form.FieldType][]string `yaml:"field_patterns" json:"field_patterns"`
	ValidationRules     map[form.FieldType][]string `yaml:"validation_rules" json:"validation_rules"`
	ConfidenceThreshold float64                     `yaml:"confidence_threshold" json:"confidence_threshold"`
}
