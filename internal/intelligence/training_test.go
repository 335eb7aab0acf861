package intelligence

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

func TestTrainer_SkipsBelowMinimum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	trainer := NewTrainer(TrainerConfig{ModelPath: path})

	result, model, err := trainer.Train(context.Background(), trainingCorpus()[:2])

	require.NoError(t, err)
	assert.Nil(t, model)
	assert.True(t, result.Skipped)
	assert.Contains(t, result.Reason, "at least 3")
	assert.Equal(t, true, result.Metrics()["skipped"])
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTrainer_IgnoresEmptySamples(t *testing.T) {
	samples := []TrainingSample{
		{Text: "invoice", DocumentType: DocumentTypeInvoice},
		{Text: "  ", DocumentType: DocumentTypeInvoice},
		{DocumentType: DocumentTypeInvoice},
	}
	result, model, err := NewTrainer(TrainerConfig{}).Train(context.Background(), samples)

	require.NoError(t, err)
	assert.Nil(t, model)
	assert.True(t, result.Skipped)
}

func TestTrainer_HoldsOutTwentyPercent(t *testing.T) {
	samples := trainingCorpus()
	result, model, err := NewTrainer(TrainerConfig{}).Train(context.Background(), samples)

	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, int(math.Round(float64(len(samples))*0.2)), result.HoldoutSamples)
	assert.Equal(t, len(samples)-result.HoldoutSamples, result.TrainingSamples)
	assert.True(t, model.DocumentType.Ready())
	assert.True(t, model.FieldType.Ready())
	assert.InDelta(t, 1.0, result.DocumentTypeAccuracy, 1e-9)
	assert.InDelta(t, 1.0, result.FieldTypeAccuracy, 1e-9)
}

func TestTrainer_HoldoutIsAtLeastOne(t *testing.T) {
	samples := trainingCorpus()[:3]
	result, _, err := NewTrainer(TrainerConfig{}).Train(context.Background(), samples)

	require.NoError(t, err)
	assert.Equal(t, 1, result.HoldoutSamples)
	assert.Equal(t, 2, result.TrainingSamples)
}

func TestTrainer_Reproducible(t *testing.T) {
	a, _, err := NewTrainer(TrainerConfig{Seed: 9}).Train(context.Background(), trainingCorpus())
	require.NoError(t, err)
	b, _, err := NewTrainer(TrainerConfig{Seed: 9}).Train(context.Background(), trainingCorpus())
	require.NoError(t, err)

	assert.Equal(t, a.DocumentTypeAccuracy, b.DocumentTypeAccuracy)
	assert.Equal(t, a.FieldTypeAccuracy, b.FieldTypeAccuracy)
}

func TestTrainer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, model, err := NewTrainer(TrainerConfig{}).Train(ctx, trainingCorpus())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, model)
}

func TestTrainer_PersistsModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "model.json")
	_, model, err := NewTrainer(TrainerConfig{ModelPath: path}).Train(context.Background(), trainingCorpus())
	require.NoError(t, err)

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentType.Classifier.Classes, loaded.DocumentType.Classifier.Classes)

	label, _, _ := loaded.FieldType.Predict("Patient Number")
	assert.Equal(t, string(form.FieldTypePatientID), label)
}

func TestLoadModel_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadModel(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0o644))
	_, err = LoadModel(path)
	assert.ErrorContains(t, err, "unsupported model version")
}

func TestDocumentClassifier_SkippedTrainingKeepsModel(t *testing.T) {
	dc := newTestClassifier(t, DefaultClassifierConfig())
	_, err := dc.Train(context.Background(), trainingCorpus(), 3)
	require.NoError(t, err)

	result, err := dc.Train(context.Background(), trainingCorpus()[:1], 3)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.True(t, dc.HasModel())
}
