package intelligence

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorizer_FitAndTransform(t *testing.T) {
	v := NewVectorizer(0)
	v.Fit([]string{"patient name", "patient address", "invoice total"})

	assert.Equal(t, DefaultMaxFeatures, v.MaxFeatures)
	assert.Len(t, v.Vocabulary, 5)

	vec := v.Transform("patient patient total")
	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
	assert.Greater(t, vec[v.Vocabulary["patient"]], vec[v.Vocabulary["total"]])

	zero := v.Transform("completely unseen words")
	for _, x := range zero {
		assert.Zero(t, x)
	}
}

func TestVectorizer_MaxFeatures(t *testing.T) {
	docs := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		docs = append(docs, fmt.Sprintf("common term%02d", i))
	}
	v := NewVectorizer(5)
	v.Fit(docs)

	require.Len(t, v.Vocabulary, 5)
	assert.Contains(t, v.Vocabulary, "common")
}

func TestNaiveBayes(t *testing.T) {
	nb := NewNaiveBayes()
	label, p := nb.Predict([]float64{1})
	assert.Empty(t, label)
	assert.Zero(t, p)

	require.Error(t, nb.Fit(nil, nil))

	x := [][]float64{{1, 0}, {0.9, 0.1}, {0, 1}, {0.1, 0.9}}
	y := []string{"a", "a", "b", "b"}
	require.NoError(t, nb.Fit(x, y))

	label, p = nb.Predict([]float64{1, 0})
	assert.Equal(t, "a", label)
	assert.Greater(t, p, 0.5)

	probs := nb.PredictProba([]float64{0, 1})
	assert.InDelta(t, 1.0, probs["a"]+probs["b"], 1e-9)
	assert.Greater(t, probs["b"], probs["a"])
}

func TestLRUCache(t *testing.T) {
	c := newLRUCache[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())

	c.Put("a", 10)
	v, _ = c.Get("a")
	assert.Equal(t, 10, v)

	c.Clear()
	assert.Zero(t, c.Len())
	hits, misses := c.Stats()
	assert.Zero(t, hits+misses)
}
