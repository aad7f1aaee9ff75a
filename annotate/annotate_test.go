package annotate

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/celltype"
	"github.com/YuminosukeSato/celltypist/dataio"
	"github.com/YuminosukeSato/celltypist/metrics"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/pkg/log"
	"github.com/YuminosukeSato/celltypist/sklearn/neighbors"
)

// parityModel は偶数番目の遺伝子で A、奇数番目で B を予測する二値モデル
func parityModel(genes int) *celltype.Model {
	names := make([]string, genes)
	coef := make([]float64, genes)
	mean := make([]float64, genes)
	scale := make([]float64, genes)
	for j := range names {
		names[j] = "G" + string(rune('a'+j))
		coef[j] = -1
		if j%2 == 1 {
			coef[j] = 1
		}
		scale[j] = 1
	}
	return &celltype.Model{
		Genes:       names,
		Classes:     []string{"A", "B"},
		Coef:        [][]float64{coef},
		Intercept:   []float64{0},
		ScalerMean:  mean,
		ScalerScale: scale,
		Version:     celltype.FormatVersion,
	}
}

// groupedDataset は前半が A 型、後半が B 型の細胞を持つ
func groupedDataset(t *testing.T, perGroup int, genes []string) *dataio.Dataset {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 7))
	n := 2 * perGroup
	X := mat.NewDense(n, len(genes), nil)
	for i := 0; i < n; i++ {
		for j := range genes {
			v := 0.1 + 0.2*rng.Float64()
			if j%2 == i/perGroup {
				v += 3
			}
			X.Set(i, j, v)
		}
	}
	ds, err := dataio.NewDataset(X, nil, genes)
	require.NoError(t, err)
	return ds
}

// twoCliques は 0..3 と 4..7 の完全グラフ
func twoCliques(t *testing.T) *neighbors.Graph {
	t.Helper()
	var edges []neighbors.Edge
	for _, base := range []int{0, 4} {
		for i := base; i < base+4; i++ {
			for j := i + 1; j < base+4; j++ {
				edges = append(edges, neighbors.Edge{From: i, To: j, Weight: 1})
			}
		}
	}
	edges = append(edges, neighbors.Edge{From: 3, To: 4, Weight: 0.05})
	g, err := neighbors.NewGraph(8, edges)
	require.NoError(t, err)
	return g
}

func TestNewRejectsInvalidModel(t *testing.T) {
	_, err := New(nil)
	var ma *errors.MissingArgumentError
	assert.True(t, errors.As(err, &ma))

	m := parityModel(4)
	m.Intercept = []float64{0, 0}
	_, err = New(m)
	var ime *errors.InvalidModelError
	assert.True(t, errors.As(err, &ime))
}

func TestAnnotateWithoutVoting(t *testing.T) {
	m := parityModel(6)
	ds := groupedDataset(t, 5, m.Genes)

	a, err := New(m, WithLogger(log.NewTestLogger(log.LevelDebug)))
	require.NoError(t, err)
	res, err := a.Annotate(ds)
	require.NoError(t, err)

	assert.Equal(t, ds.Cells, res.Cells)
	assert.Equal(t, []string{"A", "B"}, res.Classes)
	for i, label := range res.PredictedLabels {
		want := "A"
		if i >= 5 {
			want = "B"
		}
		assert.Equal(t, want, label, "cell %d", i)
		assert.InDelta(t, 1.0, floats.Sum(res.Probabilities.RawRowView(i)), 1e-9)
	}
	assert.Nil(t, res.OverClustering)
	assert.Nil(t, res.MajorityVoting)
	assert.Equal(t, "10 cells predicted into 2 cell types", res.String())

	_, err = res.Column(MajorityVoting)
	var ma *errors.MissingArgumentError
	assert.True(t, errors.As(err, &ma))
	_, err = res.Column("nope")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestAnnotateReusesGraph(t *testing.T) {
	m := parityModel(4)
	ds := groupedDataset(t, 4, m.Genes)
	// cell 1 は B 型の発現に入れ替える
	ds.X.SetRow(1, ds.X.RawRowView(6))
	ds.Graph = twoCliques(t)

	logger := log.NewTestLogger(log.LevelDebug)
	a, err := New(m, WithMajorityVoting(true), WithResolution(1), WithLogger(logger))
	require.NoError(t, err)
	res, err := a.Annotate(ds)
	require.NoError(t, err)

	assert.Equal(t, "B", res.PredictedLabels[1])
	assert.Equal(t, []string{"A", "A", "A", "A", "B", "B", "B", "B"}, res.MajorityVoting)
	assert.Equal(t, res.OverClustering[0], res.OverClustering[3])
	assert.NotEqual(t, res.OverClustering[0], res.OverClustering[4])
	assert.True(t, logger.ContainsMessage("Detected a neighbourhood graph"))
	assert.Nil(t, ds.Embedding, "a reused graph must not trigger PCA")

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	var modularity interface{}
	for _, e := range entries {
		if e["message"] == "Over-clustering done" {
			modularity = e[log.ModularityKey]
		}
	}
	require.NotNil(t, modularity, "over-clustering summary is logged")
	assert.Greater(t, modularity.(float64), 0.0)

	freq, err := res.SummaryFrequency(PredictedLabels)
	require.NoError(t, err)
	assert.Equal(t, []metrics.LabelCount{{Label: "B", Count: 5}, {Label: "A", Count: 3}}, freq)
	assert.Equal(t, "8 cells predicted into 2 cell types", res.String())
}

func TestAnnotateBuildsGraph(t *testing.T) {
	m := parityModel(10)
	ds := groupedDataset(t, 15, m.Genes)

	a, err := New(m,
		WithMajorityVoting(true),
		WithResolution(1),
		WithGraphOptions(neighbors.WithNeighbors(5)),
		WithLogger(log.NewTestLogger(log.LevelDebug)),
	)
	require.NoError(t, err)
	res, err := a.Annotate(ds)
	require.NoError(t, err)

	require.NotNil(t, ds.Graph)
	require.NotNil(t, ds.Embedding)
	assert.Equal(t, 30, ds.Graph.Nodes)
	assert.Len(t, res.OverClustering, 30)
	assert.Equal(t, res.PredictedLabels, res.MajorityVoting)
}

func TestAnnotateWithGivenClusters(t *testing.T) {
	m := parityModel(4)
	ds := groupedDataset(t, 2, m.Genes)

	a, err := New(m, WithMajorityVoting(true), WithOverClustering([]string{"x", "x", "x", "y"}))
	require.NoError(t, err)
	res, err := a.Annotate(ds)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A", "A", "B"}, res.MajorityVoting)
	assert.Nil(t, ds.Graph)

	a, err = New(m, WithMajorityVoting(true), WithOverClustering([]string{"x"}))
	require.NoError(t, err)
	_, err = a.Annotate(ds)
	var lm *errors.LengthMismatchError
	assert.True(t, errors.As(err, &lm))
}

func TestAnnotateFeatureMismatch(t *testing.T) {
	m := parityModel(4)
	ds, err := dataio.NewDataset(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), nil, []string{"X", "Y"})
	require.NoError(t, err)

	a, err := New(m)
	require.NoError(t, err)
	_, err = a.Annotate(ds)
	var fm *errors.FeatureMismatchError
	assert.True(t, errors.As(err, &fm))
}

func TestEnsureGraphChecksSize(t *testing.T) {
	m := parityModel(4)
	ds := groupedDataset(t, 3, m.Genes)
	ds.Graph = twoCliques(t)

	err := EnsureGraph(ds, log.NewTestLogger(log.LevelDebug))
	var dm *errors.DimensionMismatchError
	assert.True(t, errors.As(err, &dm))
}

func TestWriteTables(t *testing.T) {
	res := &AnnotationResult{
		Cells:           []string{"c1", "c2"},
		Classes:         []string{"A", "B"},
		PredictedLabels: []string{"A", "B"},
		Probabilities:   mat.NewDense(2, 2, []float64{0.9, 0.1, 0.2, 0.8}),
		OverClustering:  []string{"0", "0"},
		MajorityVoting:  []string{"A", "A"},
	}
	dir := t.TempDir()

	paths, err := res.WriteTables(dir, ExportOptions{Prefix: "run_"})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "run_predicted_labels.csv"), paths[0])
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, ",predicted_labels,over_clustering,majority_voting\nc1,A,0,A\nc2,B,0,A\n", string(data))

	paths, err = res.WriteTables(dir, ExportOptions{Excel: true})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "annotation_result.xlsx")}, paths)
	_, err = os.Stat(paths[0])
	assert.NoError(t, err)

	_, err = res.WriteTables(filepath.Join(dir, "missing"), ExportOptions{})
	var ife *errors.InputFormatError
	assert.True(t, errors.As(err, &ife))
}
