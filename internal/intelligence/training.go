package intelligence

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMinTrainingSamples is the smallest sample set worth fitting
const DefaultMinTrainingSamples = 3

// holdoutFraction of samples is kept aside for accuracy metrics
const holdoutFraction = 0.2

// TrainerConfig configures a Trainer
type TrainerConfig struct {
	MinSamples  int
	MaxFeatures int
	ModelPath   string
	// Seed drives the train/holdout shuffle so runs are reproducible.
	Seed int64
}

// Trainer fits document-type and field-type models from labeled samples
type Trainer struct {
	cfg TrainerConfig
}

// NewTrainer creates a trainer, filling unset fields with defaults
func NewTrainer(cfg TrainerConfig) *Trainer {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinTrainingSamples
	}
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = DefaultMaxFeatures
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	return &Trainer{cfg: cfg}
}

// Train fits a model from samples. Too few samples yield a skipped result
// and a nil model. When ModelPath is set the model is persisted there.
func (t *Trainer) Train(ctx context.Context, samples []TrainingSample) (TrainingResult, *Model, error) {
	usable := make([]TrainingSample, 0, len(samples))
	for _, s := range samples {
		if strings.TrimSpace(s.Text) == "" && strings.TrimSpace(s.Context) == "" {
			continue
		}
		usable = append(usable, s)
	}

	if len(usable) < t.cfg.MinSamples {
		return TrainingResult{
			Skipped:         true,
			Reason:          fmt.Sprintf("need at least %d samples, have %d", t.cfg.MinSamples, len(usable)),
			TrainingSamples: len(usable),
			TrainedAt:       time.Now(),
		}, nil, nil
	}

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	rng.Shuffle(len(usable), func(i, j int) { usable[i], usable[j] = usable[j], usable[i] })

	holdout := int(math.Round(float64(len(usable)) * holdoutFraction))
	if holdout < 1 {
		holdout = 1
	}
	test, train := usable[:holdout], usable[holdout:]

	if err := ctx.Err(); err != nil {
		return TrainingResult{}, nil, err
	}

	model := &Model{Version: modelFormatVersion, TrainedAt: time.Now()}
	result := TrainingResult{
		TrainingSamples: len(train),
		HoldoutSamples:  len(test),
		TrainedAt:       model.TrainedAt,
	}

	docTexts, docLabels := documentExamples(train)
	if len(docTexts) > 0 {
		model.DocumentType = &TextModel{}
		if err := model.DocumentType.Fit(docTexts, docLabels, t.cfg.MaxFeatures); err != nil {
			return TrainingResult{}, nil, fmt.Errorf("failed to fit document model: %w", err)
		}
		texts, labels := documentExamples(test)
		result.DocumentTypeAccuracy = accuracy(model.DocumentType, texts, labels)
	}

	if err := ctx.Err(); err != nil {
		return TrainingResult{}, nil, err
	}

	fieldTexts, fieldLabels := fieldExamples(train)
	if len(fieldTexts) > 0 {
		model.FieldType = &TextModel{}
		if err := model.FieldType.Fit(fieldTexts, fieldLabels, t.cfg.MaxFeatures); err != nil {
			return TrainingResult{}, nil, fmt.Errorf("failed to fit field model: %w", err)
		}
		texts, labels := fieldExamples(test)
		result.FieldTypeAccuracy = accuracy(model.FieldType, texts, labels)
	}

	if model.DocumentType == nil && model.FieldType == nil {
		result.Skipped = true
		result.Reason = "samples carry no labels"
		return result, nil, nil
	}

	if t.cfg.ModelPath != "" {
		if err := model.Save(t.cfg.ModelPath); err != nil {
			return TrainingResult{}, nil, err
		}
		result.ModelPath = t.cfg.ModelPath
	}
	return result, model, nil
}

func documentExamples(samples []TrainingSample) ([]string, []string) {
	texts := make([]string, 0, len(samples))
	labels := make([]string, 0, len(samples))
	for _, s := range samples {
		if s.DocumentType == "" {
			continue
		}
		texts = append(texts, strings.TrimSpace(s.Text+" "+s.Context))
		labels = append(labels, string(s.DocumentType))
	}
	return texts, labels
}

func fieldExamples(samples []TrainingSample) ([]string, []string) {
	texts := make([]string, 0, len(samples))
	labels := make([]string, 0, len(samples))
	for _, s := range samples {
		if s.FieldType == "" {
			continue
		}
		label := s.Context
		if strings.TrimSpace(label) == "" {
			label = s.Text
		}
		texts = append(texts, label)
		labels = append(labels, string(s.FieldType))
	}
	return texts, labels
}

func accuracy(m *TextModel, texts, labels []string) float64 {
	if len(texts) == 0 || !m.Ready() {
		return 0
	}
	correct := 0
	for i, text := range texts {
		if predicted, _, _ := m.Predict(text); predicted == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(texts))
}

// Train fits a new model from samples and installs it. Skipped runs leave
// the current model in place.
func (dc *DocumentClassifier) Train(ctx context.Context, samples []TrainingSample, minSamples int) (TrainingResult, error) {
	trainer := NewTrainer(TrainerConfig{
		MinSamples:  minSamples,
		MaxFeatures: dc.cfg.MaxFeatures,
		ModelPath:   dc.cfg.ModelPath,
	})
	result, model, err := trainer.Train(ctx, samples)
	if err != nil {
		dc.logger.WithError(err).Error("Training failed")
		return result, err
	}
	if model == nil {
		dc.logger.WithField("reason", result.Reason).Info("Training skipped")
		return result, nil
	}
	dc.SetModel(model)
	dc.logger.WithFields(logrus.Fields{
		"training_samples":       result.TrainingSamples,
		"holdout_samples":        result.HoldoutSamples,
		"document_type_accuracy": result.DocumentTypeAccuracy,
		"field_type_accuracy":    result.FieldTypeAccuracy,
	}).Info("Classifier trained")
	return result, nil
}
