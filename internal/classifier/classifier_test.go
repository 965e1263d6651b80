package classifier

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previsioni/internal/core"
	"previsioni/internal/textnorm"
)

func corpus(rows ...[2]string) []core.LabeledExample {
	out := make([]core.LabeledExample, len(rows))
	for i, r := range rows {
		out[i] = core.LabeledExample{
			ID:                    int64(i + 1),
			Description:           r[0],
			NormalizedDescription: textnorm.Normalize(r[0]),
			Category:              r[1],
		}
	}
	return out
}

func sampleCorpus() []core.LabeledExample {
	return corpus(
		[2]string{"Coffee", "food"},
		[2]string{"Starbucks coffee", "food"},
		[2]string{"Starbucks latte", "food"},
		[2]string{"Coffee beans", "food"},
		[2]string{"Coffee and croissant", "food"},
		[2]string{"Starbucks breakfast", "food"},
		[2]string{"Lunch at restaurant", "food"},
		[2]string{"Groceries", "food"},
		[2]string{"Gym membership", "fitness"},
		[2]string{"Yoga class", "fitness"},
		[2]string{"Gym shoes", "fitness"},
		[2]string{"Uber ride", "transport"},
		[2]string{"Bus ticket", "transport"},
		[2]string{"Train ticket", "transport"},
		[2]string{"Netflix subscription", "entertainment"},
		[2]string{"Movie tickets", "entertainment"},
	)
}

func TestPredictKnownCategory(t *testing.T) {
	m, err := Train(sampleCorpus(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, AlgorithmForest, m.Algorithm())
	assert.Equal(t, []string{"entertainment", "fitness", "food", "transport"}, m.Categories())

	p, err := m.Predict("Coffee at Starbucks")
	require.NoError(t, err)
	assert.Equal(t, "food", p.Category)
	assert.Greater(t, p.Confidence, 0.0)
	assert.LessOrEqual(t, p.Confidence, 1.0)
	assert.Equal(t, "food", p.NearestCategory)
	assert.Equal(t, "Starbucks coffee", p.NearestDescription)
	assert.InDelta(t, 1.0, p.Confidence, 1e-9)
}

func TestPredictDeterministic(t *testing.T) {
	queries := []string{"Coffee at Starbucks", "gym", "ticket for the train", "pizza night"}

	a, err := Train(sampleCorpus(), DefaultOptions())
	require.NoError(t, err)
	b, err := Train(sampleCorpus(), DefaultOptions())
	require.NoError(t, err)

	for _, q := range queries {
		pa, err := a.Predict(q)
		require.NoError(t, err)
		pb, err := b.Predict(q)
		require.NoError(t, err)
		assert.Equal(t, pa, pb, "query %q", q)

		again, err := a.Predict(q)
		require.NoError(t, err)
		assert.Equal(t, pa, again, "query %q", q)
	}
}

func TestPredictUnknownTerms(t *testing.T) {
	m, err := Train(sampleCorpus(), DefaultOptions())
	require.NoError(t, err)

	p, err := m.Predict("zzzz qqqq")
	require.NoError(t, err)
	assert.Contains(t, m.Categories(), p.Category)
	assert.Equal(t, 0.0, p.Confidence)
	assert.Empty(t, p.NearestCategory)
}

func TestPredictEmptyDescription(t *testing.T) {
	m, err := Train(sampleCorpus(), DefaultOptions())
	require.NoError(t, err)
	for _, in := range []string{"", "   ", "\t\n"} {
		_, err := m.Predict(in)
		assert.True(t, errors.Is(err, core.ErrEmptyDescription), "input %q", in)
	}
}

func TestTrainErrors(t *testing.T) {
	_, err := Train(nil, DefaultOptions())
	assert.True(t, errors.Is(err, core.ErrCorpusUnavailable))

	bad := sampleCorpus()
	bad[3].Category = ""
	_, err = Train(bad, DefaultOptions())
	assert.True(t, errors.Is(err, core.ErrCorpusMalformed))
	assert.True(t, core.IsDataAvailability(err))

	bad = sampleCorpus()
	bad[0].NormalizedDescription = "  "
	_, err = Train(bad, DefaultOptions())
	assert.True(t, errors.Is(err, core.ErrCorpusMalformed))

	// only single-character tokens: nothing survives the token pattern
	_, err = Train(corpus([2]string{"a b c", "misc"}, [2]string{"x y", "misc"}), DefaultOptions())
	assert.True(t, errors.Is(err, core.ErrModelFailure))
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := TrainContext(ctx, sampleCorpus(), DefaultOptions())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSingleCategoryCorpus(t *testing.T) {
	m, err := Train(corpus([2]string{"Rent", "housing"}, [2]string{"Electricity bill", "housing"}), DefaultOptions())
	require.NoError(t, err)
	p, err := m.Predict("monthly rent")
	require.NoError(t, err)
	assert.Equal(t, "housing", p.Category)
}

func TestBayesAlgorithm(t *testing.T) {
	opts := DefaultOptions()
	opts.Algorithm = AlgorithmBayes
	m, err := Train(sampleCorpus(), opts)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmBayes, m.Algorithm())

	p, err := m.Predict("Coffee at Starbucks")
	require.NoError(t, err)
	assert.Equal(t, "food", p.Category)
	assert.Greater(t, p.Confidence, 0.0)

	// a single class cannot feed naive Bayes; the forest takes over
	m, err = Train(corpus([2]string{"Rent", "housing"}, [2]string{"Water bill", "housing"}), opts)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmForest, m.Algorithm())
}

func TestParseAlgorithm(t *testing.T) {
	assert.Equal(t, AlgorithmBayes, ParseAlgorithm(" Bayes "))
	assert.Equal(t, AlgorithmForest, ParseAlgorithm("forest"))
	assert.Equal(t, AlgorithmForest, ParseAlgorithm(""))
}

func TestVectorizer(t *testing.T) {
	v := FitVectorizer([]string{"coffee starbucks", "coffee beans", "gym"})
	assert.Equal(t, []string{"beans", "coffee", "gym", "starbucks"}, v.Terms())

	x := v.Transform("coffee coffee unknown")
	require.Len(t, x, 4)
	assert.InDelta(t, 1.0, x[1], 1e-12)
	assert.Zero(t, x[0])

	// smooth idf: ln((1+3)/(1+2))+1 for "coffee", ln(4/2)+1 for "beans"
	y := v.Transform("coffee beans")
	idfCoffee := math.Log(4.0/3.0) + 1
	idfBeans := math.Log(2) + 1
	norm := math.Hypot(idfCoffee, idfBeans)
	assert.InDelta(t, idfBeans/norm, y[0], 1e-12)
	assert.InDelta(t, idfCoffee/norm, y[1], 1e-12)

	assert.Equal(t, make([]float64, 4), v.Transform("nothing known"))
}

func TestTreeSeparatesClasses(t *testing.T) {
	x := [][]float64{{0, 1}, {0, 0.9}, {1, 0}, {0.8, 0}}
	y := []int{0, 0, 1, 1}
	f, err := growForest(context.Background(), x, y, 2, 25, 7)
	require.NoError(t, err)
	for i := range x {
		assert.Equal(t, y[i], f.predict(x[i]))
	}
}
