package intelligence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// modelFormatVersion is bumped when the persisted layout changes
const modelFormatVersion = 1

// TextModel pairs a vectorizer with the classifier trained on its output
type TextModel struct {
	Vectorizer *Vectorizer `json:"vectorizer"`
	Classifier *NaiveBayes `json:"classifier"`
}

// Ready reports whether the model can predict
func (m *TextModel) Ready() bool {
	return m != nil && m.Vectorizer != nil && m.Vectorizer.Fitted() &&
		m.Classifier != nil && m.Classifier.Trained()
}

// Fit trains the vectorizer and classifier on texts with labels
func (m *TextModel) Fit(texts, labels []string, maxFeatures int) error {
	m.Vectorizer = NewVectorizer(maxFeatures)
	m.Vectorizer.Fit(texts)
	x := make([][]float64, len(texts))
	for i, t := range texts {
		x[i] = m.Vectorizer.Transform(t)
	}
	m.Classifier = NewNaiveBayes()
	return m.Classifier.Fit(x, labels)
}

// Predict returns the best label for text, its probability and all
// class probabilities. Text with no word in the vocabulary has no
// evidence beyond the class priors and predicts nothing.
func (m *TextModel) Predict(text string) (string, float64, map[string]float64) {
	if !m.Ready() {
		return "", 0, nil
	}
	features := m.Vectorizer.Transform(text)
	if !slices.ContainsFunc(features, func(v float64) bool { return v != 0 }) {
		return "", 0, nil
	}
	probs := m.Classifier.PredictProba(features)
	label, p := m.Classifier.Predict(features)
	return label, p, probs
}

// Model is the persisted statistical state: one text model for field
// types and one for document types.
type Model struct {
	Version      int        `json:"version"`
	TrainedAt    time.Time  `json:"trained_at"`
	FieldType    *TextModel `json:"field_type,omitempty"`
	DocumentType *TextModel `json:"document_type,omitempty"`
}

// Save writes the model as JSON, replacing path atomically
func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace model: %w", err)
	}
	return nil
}

// LoadModel reads a model saved by Save
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", path, err)
	}
	if m.Version != modelFormatVersion {
		return nil, fmt.Errorf("unsupported model version %d", m.Version)
	}
	return &m, nil
}
