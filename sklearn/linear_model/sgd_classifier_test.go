package linear_model

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// blobs はクラスごとに異なる特徴量が高発現する分離可能なデータを作る
func blobs(classes []string, perClass, nFeatures int, seed uint64) (*mat.Dense, []string) {
	rng := rand.New(rand.NewPCG(seed, seed))
	n := perClass * len(classes)
	X := mat.NewDense(n, nFeatures, nil)
	y := make([]string, n)
	for c, label := range classes {
		for s := 0; s < perClass; s++ {
			i := c*perClass + s
			y[i] = label
			for j := 0; j < nFeatures; j++ {
				v := rng.NormFloat64() * 0.3
				if j%len(classes) == c {
					v += 3
				}
				X.Set(i, j, v)
			}
		}
	}
	return X, y
}

func TestSGDClassifierMulticlass(t *testing.T) {
	X, y := blobs([]string{"T", "B", "NK"}, 30, 6, 1)

	clf := NewSGDClassifier(WithRandomState(42), WithNJobs(3))
	require.NoError(t, clf.Fit(X, y))

	assert.Equal(t, []string{"B", "NK", "T"}, clf.Classes())
	r, c := clf.Coef().Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 6, c)

	acc, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.95)

	proba, err := clf.PredictProba(X)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		assert.InDelta(t, 1.0, floats.Sum(proba.RawRowView(i)), 1e-6)
	}
	assert.Greater(t, clf.NIter(), 0)
}

func TestSGDClassifierBinary(t *testing.T) {
	X, y := blobs([]string{"neg", "pos"}, 40, 4, 2)

	clf := NewSGDClassifier(WithRandomState(7))
	require.NoError(t, clf.Fit(X, y))

	scores, err := clf.DecisionFunction(X)
	require.NoError(t, err)
	_, cols := scores.Dims()
	assert.Equal(t, 1, cols, "binary models have a single head")

	proba, err := clf.PredictProba(X)
	require.NoError(t, err)
	_, cols = proba.Dims()
	assert.Equal(t, 2, cols)

	pred, err := clf.Predict(X)
	require.NoError(t, err)
	// 正例 (classes[1]) のスコアが正なら "pos"
	for i := range pred {
		if scores.At(i, 0) > 0 {
			assert.Equal(t, "pos", pred[i])
		} else {
			assert.Equal(t, "neg", pred[i])
		}
	}
}

func TestSGDClassifierDeterministic(t *testing.T) {
	X, y := blobs([]string{"a", "b", "c"}, 20, 5, 3)

	fit := func(jobs int) *mat.Dense {
		clf := NewSGDClassifier(WithRandomState(11), WithNJobs(jobs))
		require.NoError(t, clf.Fit(X, y))
		return clf.Coef()
	}
	assert.True(t, mat.Equal(fit(1), fit(4)), "worker count must not change the result")
}

func TestSGDClassifierPartialFit(t *testing.T) {
	X, y := blobs([]string{"x", "y", "z"}, 30, 6, 4)
	classes := []string{"z", "y", "x"}

	clf := NewSGDClassifier(WithRandomState(5))

	err := clf.PartialFit(X, y, nil)
	var ma *errors.MissingArgumentError
	require.True(t, errors.As(err, &ma), "classes are required on the first call")

	for epoch := 0; epoch < 5; epoch++ {
		require.NoError(t, clf.PartialFit(X.Slice(0, 45, 0, 6), y[:45], classes))
		require.NoError(t, clf.PartialFit(X.Slice(45, 90, 0, 6), y[45:], nil))
	}
	assert.Equal(t, []string{"x", "y", "z"}, clf.Classes())
	assert.Equal(t, 10, clf.NIter())

	acc, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.9)

	var ve *errors.ValidationError
	assert.True(t, errors.As(clf.PartialFit(X.Slice(0, 2, 0, 6), []string{"x", "w"}, nil), &ve))
	assert.True(t, errors.As(clf.PartialFit(X.Slice(0, 2, 0, 6), []string{"x", "y"}, []string{"x", "y"}), &ve))

	var de *errors.DimensionError
	assert.True(t, errors.As(clf.PartialFit(mat.NewDense(2, 3, nil), []string{"x", "y"}, nil), &de))
}

func TestSGDClassifierErrors(t *testing.T) {
	clf := NewSGDClassifier()

	_, err := clf.Predict(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	var lm *errors.LengthMismatchError
	assert.True(t, errors.As(clf.Fit(mat.NewDense(3, 2, nil), []string{"a", "b"}), &lm))

	var ve *errors.ValidationError
	assert.True(t, errors.As(clf.Fit(mat.NewDense(2, 2, nil), []string{"a", "a"}), &ve))
	assert.True(t, errors.As(NewSGDClassifier(WithAlpha(0)).Fit(mat.NewDense(2, 2, nil), []string{"a", "b"}), &ve))
}

func TestSGDClassifierWeightsRoundTrip(t *testing.T) {
	X, y := blobs([]string{"a", "b", "c"}, 15, 4, 6)
	clf := NewSGDClassifier(WithRandomState(1))
	require.NoError(t, clf.Fit(X, y))

	w, err := clf.ExportWeights()
	require.NoError(t, err)
	require.NoError(t, w.Validate())

	restored := NewSGDClassifier()
	require.NoError(t, restored.ImportWeights(w))

	a, err := clf.PredictProba(X)
	require.NoError(t, err)
	b, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestProbaFromScores(t *testing.T) {
	scores := mat.NewDense(3, 3, []float64{
		1, 2, 3,
		5, 5, 1,
		1000, 0, -1000,
	})
	proba := ProbaFromScores(scores)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0, floats.Sum(proba.RawRowView(i)), 1e-9)
	}
	assert.False(t, math.IsNaN(proba.At(2, 0)))
	assert.Equal(t, []int{2, 0, 0}, ArgMaxRows(proba), "ties resolve to the lowest index")

	binary := ProbaFromScores(mat.NewDense(2, 1, []float64{0, 2}))
	assert.Equal(t, 0.5, binary.At(0, 1))
	assert.Equal(t, []int{0, 1}, ArgMaxRows(binary))
}

func TestLogLossIsStable(t *testing.T) {
	assert.InDelta(t, math.Log(2), logLoss(0, 1), 1e-12)
	assert.InDelta(t, 50.0, logLoss(-50, 1), 1e-9)
	assert.InDelta(t, -0.5, logDLoss(0, 1), 1e-12)
	assert.InDelta(t, 1.0, logDLoss(50, -1), 1e-12)
}

func TestDecisionScores(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	coef := mat.NewDense(1, 2, []float64{1, -1})
	s := DecisionScores(X, coef, []float64{0.5})
	assert.Equal(t, -0.5, s.At(0, 0))
	assert.Equal(t, -0.5, s.At(1, 0))
}
