package neighbors

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// twoGroups は前半と後半で別の遺伝子群が発現する細胞を作る
func twoGroups(perGroup, genes int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, seed))
	n := 2 * perGroup
	X := mat.NewDense(n, genes, nil)
	for i := 0; i < n; i++ {
		group := i / perGroup
		for j := 0; j < genes; j++ {
			v := 0.1 + 0.2*rng.Float64()
			if j%2 == group {
				v += 3
			}
			X.Set(i, j, v)
		}
	}
	return X
}

func TestNewGraph(t *testing.T) {
	g, err := NewGraph(4, []Edge{
		{From: 2, To: 0, Weight: 0.3},
		{From: 0, To: 2, Weight: 0.5},
		{From: 1, To: 3, Weight: 0.1},
	})
	require.NoError(t, err)
	assert.Equal(t, []Edge{
		{From: 0, To: 2, Weight: 0.5},
		{From: 1, To: 3, Weight: 0.1},
	}, g.Edges)
	assert.Equal(t, []float64{0.5, 0.1, 0.5, 0.1}, g.Degrees())

	wg := g.Weighted()
	assert.Equal(t, 4, wg.Nodes().Len())
	w, ok := wg.Weight(0, 2)
	assert.True(t, ok)
	assert.Equal(t, 0.5, w)

	var ve *errors.ValidationError
	_, err = NewGraph(2, []Edge{{From: 0, To: 0, Weight: 1}})
	assert.True(t, errors.As(err, &ve))
	_, err = NewGraph(2, []Edge{{From: 0, To: 5, Weight: 1}})
	assert.True(t, errors.As(err, &ve))
	_, err = NewGraph(2, []Edge{{From: 0, To: 1, Weight: -1}})
	assert.True(t, errors.As(err, &ve))
}

func TestGraphBuilderSeparatesGroups(t *testing.T) {
	X := twoGroups(15, 10, 1)

	nb, err := NewGraphBuilder(WithNeighbors(5), WithGraphJobs(2)).Build(X)
	require.NoError(t, err)

	assert.Equal(t, 30, nb.Graph.Nodes)
	r, _ := nb.Embedding.Dims()
	assert.Equal(t, 30, r)
	assert.NotEmpty(t, nb.Genes)

	within, across := 0.0, 0.0
	for _, e := range nb.Graph.Edges {
		assert.Less(t, e.From, e.To)
		assert.Greater(t, e.Weight, 0.0)
		assert.LessOrEqual(t, e.Weight, 1.0)
		if e.From/15 == e.To/15 {
			within += e.Weight
		} else {
			across += e.Weight
		}
	}
	assert.Greater(t, within, 10*across)

	for i, d := range nb.Graph.Degrees() {
		assert.Greater(t, d, 0.0, "cell %d is isolated", i)
	}
}

func TestGraphBuilderDeterministicAcrossJobs(t *testing.T) {
	X := twoGroups(10, 8, 2)
	a, err := NewGraphBuilder(WithNeighbors(4), WithGraphJobs(1)).Build(X)
	require.NoError(t, err)
	b, err := NewGraphBuilder(WithNeighbors(4), WithGraphJobs(4)).Build(X)
	require.NoError(t, err)
	assert.Equal(t, a.Graph.Edges, b.Graph.Edges)
}

func TestGraphBuilderSmallInputs(t *testing.T) {
	_, err := NewGraphBuilder().Build(mat.NewDense(1, 3, []float64{1, 2, 3}))
	var ide *errors.InsufficientDataError
	assert.True(t, errors.As(err, &ide))

	// k は n-1 に切り詰められる
	X := mat.NewDense(3, 2, []float64{
		1, 0.5,
		2, 0.1,
		0.2, 3,
	})
	nb, err := NewGraphBuilder(WithMinCells(1)).Build(X)
	require.NoError(t, err)
	assert.Equal(t, 3, nb.Graph.Nodes)
	assert.Len(t, nb.Graph.Edges, 3)

	var ve *errors.ValidationError
	_, err = NewGraphBuilder(WithNeighbors(0)).Build(X)
	assert.True(t, errors.As(err, &ve))
}

func TestKNNOrdering(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 3, 1})
	idx, dist := knn(X, 2, 1)
	assert.Equal(t, []int{1, 3}, idx[0], "equal distances keep the lower index first")
	assert.Equal(t, []float64{1, 1}, dist[0])
	assert.Equal(t, []int{3, 0}, idx[1])
	assert.Equal(t, []int{1, 3}, idx[2])
}

func TestSmoothKNNDist(t *testing.T) {
	dist := []float64{0.5, 1.0, 1.5, 2.0}
	rho, sigma := smoothKNNDist(dist, 4, 1)
	assert.Equal(t, 0.5, rho)

	sum := 0.0
	for _, d := range dist {
		sum += math.Exp(-math.Max(0, d-rho) / sigma)
	}
	assert.InDelta(t, 2.0, sum, 1e-3)
}
