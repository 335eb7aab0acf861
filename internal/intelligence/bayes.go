package intelligence

import (
	"errors"
	"math"
	"sort"
)

var errEmptyTrainingSet = errors.New("empty training set")

// NaiveBayes is a multinomial naive Bayes classifier over TF-IDF features
// with Laplace smoothing.
type NaiveBayes struct {
	Alpha         float64     `json:"alpha"`
	Classes       []string    `json:"classes"`
	LogPrior      []float64   `json:"log_prior"`
	LogLikelihood [][]float64 `json:"log_likelihood"`
}

// NewNaiveBayes creates an untrained classifier
func NewNaiveBayes() *NaiveBayes {
	return &NaiveBayes{Alpha: 1.0}
}

// Trained reports whether Fit has run successfully
func (nb *NaiveBayes) Trained() bool {
	return len(nb.Classes) > 0
}

// Fit trains on feature vectors x with labels y
func (nb *NaiveBayes) Fit(x [][]float64, y []string) error {
	if len(x) == 0 || len(x) != len(y) {
		return errEmptyTrainingSet
	}
	if nb.Alpha <= 0 {
		nb.Alpha = 1.0
	}

	index := make(map[string]int)
	for _, label := range y {
		if _, ok := index[label]; !ok {
			index[label] = 0
		}
	}
	classes := make([]string, 0, len(index))
	for c := range index {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for i, c := range classes {
		index[c] = i
	}

	nFeatures := len(x[0])
	counts := make([]int, len(classes))
	featureSums := make([][]float64, len(classes))
	for i := range featureSums {
		featureSums[i] = make([]float64, nFeatures)
	}
	for i, row := range x {
		c := index[y[i]]
		counts[c]++
		for j, val := range row {
			featureSums[c][j] += val
		}
	}

	nb.Classes = classes
	nb.LogPrior = make([]float64, len(classes))
	nb.LogLikelihood = make([][]float64, len(classes))
	for c := range classes {
		nb.LogPrior[c] = math.Log(float64(counts[c]) / float64(len(x)))
		var total float64
		for _, s := range featureSums[c] {
			total += s
		}
		denom := total + nb.Alpha*float64(nFeatures)
		nb.LogLikelihood[c] = make([]float64, nFeatures)
		for j, s := range featureSums[c] {
			nb.LogLikelihood[c][j] = math.Log((s + nb.Alpha) / denom)
		}
	}
	return nil
}

// PredictProba returns the posterior probability of each class
func (nb *NaiveBayes) PredictProba(features []float64) map[string]float64 {
	out := make(map[string]float64, len(nb.Classes))
	if !nb.Trained() {
		return out
	}
	logs := make([]float64, len(nb.Classes))
	best := math.Inf(-1)
	for c := range nb.Classes {
		l := nb.LogPrior[c]
		for j, val := range features {
			if val != 0 && j < len(nb.LogLikelihood[c]) {
				l += val * nb.LogLikelihood[c][j]
			}
		}
		logs[c] = l
		if l > best {
			best = l
		}
	}
	var sum float64
	for c := range logs {
		logs[c] = math.Exp(logs[c] - best)
		sum += logs[c]
	}
	for c, name := range nb.Classes {
		out[name] = logs[c] / sum
	}
	return out
}

// Predict returns the most probable class and its probability. Ties go to
// the alphabetically first class.
func (nb *NaiveBayes) Predict(features []float64) (string, float64) {
	probs := nb.PredictProba(features)
	bestClass, bestProb := "", -1.0
	for _, c := range nb.Classes {
		if probs[c] > bestProb {
			bestClass, bestProb = c, probs[c]
		}
	}
	if bestProb < 0 {
		return "", 0
	}
	return bestClass, bestProb
}
