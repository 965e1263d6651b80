// Package classifier infers an expense category from a free-text description.
//
// Descriptions are normalized, vectorized with TF-IDF and labeled by a random
// forest (or, optionally, a naive Bayes model). The reported confidence is the
// best cosine similarity between the query and any training row. It measures
// how close the query is to known data and is optimistically biased: it says
// nothing about whether the predicted category is right. The category of that
// nearest row is returned separately so callers can tell the two signals apart.
package classifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"previsioni/internal/core"
	"previsioni/internal/textnorm"
)

// Algorithm selects the ensemble used by Train.
type Algorithm string

const (
	AlgorithmForest Algorithm = "forest"
	AlgorithmBayes  Algorithm = "bayes"
)

// ParseAlgorithm maps a config value to an Algorithm. Unknown values select the forest.
func ParseAlgorithm(s string) Algorithm {
	if Algorithm(strings.ToLower(strings.TrimSpace(s))) == AlgorithmBayes {
		return AlgorithmBayes
	}
	return AlgorithmForest
}

// Options control training.
type Options struct {
	Algorithm Algorithm
	Trees     int
	Seed      int64
	// Version is the corpus version the model was trained on. Informational.
	Version int64
	// Normalizer is applied to query descriptions. Nil uses textnorm.Normalize.
	Normalizer *textnorm.Normalizer
}

// DefaultOptions returns a 100-tree forest with seed 42.
func DefaultOptions() Options {
	return Options{Algorithm: AlgorithmForest, Trees: DefaultTrees, Seed: DefaultSeed}
}

// Prediction is the result of classifying one description.
type Prediction struct {
	Category           string
	Confidence         float64
	NearestCategory    string
	NearestDescription string
}

// Model is a trained classifier. It is immutable and safe for concurrent use.
type Model struct {
	vectorizer *Vectorizer
	labels     []string
	forest     *forest
	bayes      *bayesModel
	algorithm  Algorithm

	rows         [][]float64
	rowLabels    []string
	descriptions []string

	normalizer *textnorm.Normalizer
	version    int64
}

// Train fits a model on the labeled corpus.
func Train(examples []core.LabeledExample, opts Options) (*Model, error) {
	return TrainContext(context.Background(), examples, opts)
}

// TrainContext is Train with cancellation between trees.
func TrainContext(ctx context.Context, examples []core.LabeledExample, opts Options) (m *Model, err error) {
	if len(examples) == 0 {
		return nil, core.ErrCorpusUnavailable
	}
	docs := make([]string, len(examples))
	labelSet := make(map[string]struct{})
	for i, ex := range examples {
		if strings.TrimSpace(ex.NormalizedDescription) == "" || strings.TrimSpace(ex.Category) == "" {
			return nil, fmt.Errorf("row %d: %w", i, core.ErrCorpusMalformed)
		}
		docs[i] = ex.NormalizedDescription
		labelSet[ex.Category] = struct{}{}
	}

	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("train: %v: %w", r, core.ErrModelFailure)
		}
	}()

	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	labelIndex := make(map[string]int, len(labels))
	for i, l := range labels {
		labelIndex[l] = i
	}

	vec := FitVectorizer(docs)
	if vec.Features() == 0 {
		return nil, fmt.Errorf("train: empty vocabulary: %w", core.ErrModelFailure)
	}

	rows := make([][]float64, len(docs))
	y := make([]int, len(docs))
	rowLabels := make([]string, len(docs))
	descriptions := make([]string, len(docs))
	for i, doc := range docs {
		rows[i] = vec.Transform(doc)
		y[i] = labelIndex[examples[i].Category]
		rowLabels[i] = examples[i].Category
		descriptions[i] = examples[i].Description
	}

	m = &Model{
		vectorizer:   vec,
		labels:       labels,
		rows:         rows,
		rowLabels:    rowLabels,
		descriptions: descriptions,
		normalizer:   opts.Normalizer,
		version:      opts.Version,
	}

	if opts.Algorithm == AlgorithmBayes && len(labels) >= 2 {
		tokens := make([][]string, len(docs))
		for i, doc := range docs {
			tokens[i] = analyze(doc)
		}
		m.bayes = trainBayes(tokens, y, labels)
		m.algorithm = AlgorithmBayes
		return m, nil
	}

	trees, seed := opts.Trees, opts.Seed
	if trees <= 0 {
		trees = DefaultTrees
	}
	if seed == 0 {
		seed = DefaultSeed
	}
	f, err := growForest(ctx, rows, y, len(labels), trees, seed)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	m.forest = f
	m.algorithm = AlgorithmForest
	return m, nil
}

// Predict classifies a raw description.
func (m *Model) Predict(description string) (p Prediction, err error) {
	if strings.TrimSpace(description) == "" {
		return Prediction{}, core.ErrEmptyDescription
	}
	defer func() {
		if r := recover(); r != nil {
			p, err = Prediction{}, fmt.Errorf("predict: %v: %w", r, core.ErrModelFailure)
		}
	}()

	normalized := m.normalize(description)
	x := m.vectorizer.Transform(normalized)

	var class int
	if m.bayes != nil {
		class = m.bayes.predict(analyze(normalized))
	} else {
		class = m.forest.predict(x)
	}
	p.Category = m.labels[class]

	nearest := -1
	for i, row := range m.rows {
		if s := cosine(x, row); nearest < 0 || s > p.Confidence {
			p.Confidence = s
			nearest = i
		}
	}
	// a query sharing no terms with the corpus has no meaningful neighbour
	if nearest >= 0 && p.Confidence > 0 {
		p.NearestCategory = m.rowLabels[nearest]
		p.NearestDescription = m.descriptions[nearest]
	}
	return p, nil
}

func (m *Model) normalize(s string) string {
	if m.normalizer != nil {
		return m.normalizer.Normalize(s)
	}
	return textnorm.Normalize(s)
}

// Categories returns the known labels in sorted order.
func (m *Model) Categories() []string {
	return m.labels
}

// Algorithm reports which ensemble the model uses.
func (m *Model) Algorithm() Algorithm {
	return m.algorithm
}

// Version returns the corpus version the model was trained on.
func (m *Model) Version() int64 {
	return m.version
}

// Size returns the number of training rows.
func (m *Model) Size() int {
	return len(m.rows)
}
