package celltype

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/pkg/log"
)

// identityModel は遺伝子 i が高いほどクラス i になる 3 クラスモデル
func identityModel() *Model {
	return &Model{
		Genes:   []string{"G1", "G2", "G3"},
		Classes: []string{"A", "B", "C"},
		Coef: [][]float64{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
		Intercept:   []float64{0, 0, 0},
		ScalerMean:  []float64{0, 0, 0},
		ScalerScale: []float64{1, 1, 1},
		Description: Description{Date: "2024-01-01", Details: "toy", URL: "https://example.org/model"},
		Version:     FormatVersion,
	}
}

func TestAlignGenes(t *testing.T) {
	a, err := AlignGenes([]string{"G1", "G2", "G3"}, []string{"G3", "X", "G1", "G2"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 0}, a.InputColumns)
	assert.Equal(t, []int{0, 1, 2}, a.ModelIndices)

	a, err = AlignGenes([]string{"G1", "G2", "G3", "G4"}, []string{"G4", "G2"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, a.InputColumns)
	assert.Equal(t, []int{1, 3}, a.ModelIndices)
	assert.LessOrEqual(t, a.Len(), 2)

	_, err = AlignGenes([]string{"G1"}, []string{"X"})
	var fm *errors.FeatureMismatchError
	assert.True(t, errors.As(err, &fm))

	_, err = AlignGenes([]string{"G1"}, []string{"G1", "G1"})
	var ife *errors.InputFormatError
	assert.True(t, errors.As(err, &ife))

	_, err = AlignGenes([]string{"G1", "G1"}, []string{"G1"})
	var ime *errors.InvalidModelError
	assert.True(t, errors.As(err, &ime))
}

func TestPredictThreeCellsFourGenes(t *testing.T) {
	m := identityModel()
	X := mat.NewDense(3, 4, []float64{
		0, 9, 5, 1,
		2, 9, 0, 3,
		7, 0, 1, 1,
	})

	view, err := m.Align([]string{"G3", "X", "G1", "G2"}, log.NewTestLogger(log.LevelDebug))
	require.NoError(t, err)
	assert.Equal(t, []string{"G1", "G2", "G3"}, view.Genes)

	selected, err := view.Select(X)
	require.NoError(t, err)
	_, c := selected.Dims()
	assert.Equal(t, 3, c)
	assert.Equal(t, []float64{5, 1, 0}, selected.RawRowView(0))

	pred, err := view.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, pred.Labels)
	assert.Equal(t, []int{0, 1, 2}, pred.Index)

	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0, floats.Sum(pred.Proba.RawRowView(i)), 1e-6)
	}
	want := math.Exp(5) / (math.Exp(5) + math.Exp(1) + 1)
	assert.InDelta(t, want, pred.Proba.At(0, 0), 1e-9)
}

func TestAlignDoesNotTouchModel(t *testing.T) {
	m := identityModel()
	before := m.Clone()

	view, err := m.Align([]string{"G2", "G1"}, nil)
	require.NoError(t, err)
	view.Coef.Set(0, 0, 100)
	view.Mean[0] = 100

	assert.Equal(t, before, m)
}

func TestAlignWarnsOnPartialOverlap(t *testing.T) {
	logger := log.NewTestLogger(log.LevelDebug)
	view, err := identityModel().Align([]string{"G3", "G1"}, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"G1", "G3"}, view.Genes)

	assert.True(t, logger.ContainsMessage("Only part of the model genes"))
	assert.True(t, logger.ContainsField(log.OverlapKey, float64(2)))
	assert.True(t, logger.ContainsField("level", "warn"))
}

func TestStandardize(t *testing.T) {
	mean := []float64{1, 1}
	scale := []float64{0.5, 2}
	X := mat.NewDense(3, 2, []float64{
		1, 1,
		2, -3,
		100, 100,
	})

	Z, err := Standardize(X, mean, scale, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, Z.RawRowView(0), "a row equal to the mean becomes zeros")
	assert.Equal(t, []float64{2, -2}, Z.RawRowView(1))
	assert.Equal(t, []float64{10, 10}, Z.RawRowView(2))

	r, c := Z.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.LessOrEqual(t, Z.At(i, j), 10.0)
		}
	}

	var ime *errors.InvalidModelError
	_, err = Standardize(X, mean, []float64{1, 0}, 10)
	assert.True(t, errors.As(err, &ime))
	_, err = Standardize(X, mean, []float64{math.NaN(), 1}, 10)
	assert.True(t, errors.As(err, &ime))

	var de *errors.DimensionError
	_, err = Standardize(X, []float64{1}, []float64{1}, 10)
	assert.True(t, errors.As(err, &de))
}

func TestClassifyBinaryAndTies(t *testing.T) {
	m := &Model{
		Genes:       []string{"G1", "G2"},
		Classes:     []string{"neg", "pos"},
		Coef:        [][]float64{{1, -1}},
		Intercept:   []float64{0},
		ScalerMean:  []float64{0, 0},
		ScalerScale: []float64{1, 1},
	}
	require.NoError(t, m.Validate())
	assert.True(t, m.IsBinary())

	view, err := m.Align([]string{"G1", "G2"}, nil)
	require.NoError(t, err)
	pred, err := view.Classify(mat.NewDense(3, 2, []float64{
		3, 0,
		0, 3,
		1, 1,
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"pos", "neg", "neg"}, pred.Labels, "a zero score is a tie and goes to the first class")
	assert.InDelta(t, 0.5, pred.Proba.At(2, 1), 1e-12)
	_, cols := pred.Scores.Dims()
	assert.Equal(t, 1, cols)

	// 多クラスでも完全な同点は最小のクラス番号
	tie := identityModel()
	tv, err := tie.Align(tie.Genes, nil)
	require.NoError(t, err)
	for run := 0; run < 3; run++ {
		p, err := tv.Classify(mat.NewDense(1, 3, []float64{2, 2, 2}))
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, p.Labels)
	}
}

func TestModelValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Model)
		field  string
	}{
		{"no genes", func(m *Model) { m.Genes = nil }, "genes"},
		{"duplicate gene", func(m *Model) { m.Genes[1] = "G1" }, "genes"},
		{"duplicate class", func(m *Model) { m.Classes[2] = "A" }, "classes"},
		{"short mean", func(m *Model) { m.ScalerMean = m.ScalerMean[:2] }, "scaler_mean"},
		{"short scale", func(m *Model) { m.ScalerScale = nil }, "scaler_scale"},
		{"wrong rows", func(m *Model) { m.Coef = m.Coef[:2] }, "coef"},
		{"wrong columns", func(m *Model) { m.Genes = append(m.Genes, "G4") }, "coef"},
		{"nan weight", func(m *Model) { m.Coef[1][1] = math.NaN() }, "coef"},
		{"nan mean", func(m *Model) { m.ScalerMean[0] = math.NaN() }, "scaler_mean"},
		{"infinite mean", func(m *Model) { m.ScalerMean[2] = math.Inf(-1) }, "scaler_mean"},
		{"negative scale", func(m *Model) { m.ScalerScale[0] = -1 }, "scaler_scale"},
		{"zero scale", func(m *Model) { m.ScalerScale[1] = 0 }, "scaler_scale"},
		{"nan scale", func(m *Model) { m.ScalerScale[2] = math.NaN() }, "scaler_scale"},
		{"infinite scale", func(m *Model) { m.ScalerScale[0] = math.Inf(1) }, "scaler_scale"},
		{"short intercept", func(m *Model) { m.Intercept = m.Intercept[:1] }, "intercept"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := identityModel()
			tt.mutate(m)
			err := m.Validate()
			var ime *errors.InvalidModelError
			require.True(t, errors.As(err, &ime), "got %v", err)
			assert.Equal(t, tt.field, ime.Field)
		})
	}
}

func TestModelSaveLoad(t *testing.T) {
	m := identityModel()
	m.Coef[0][1] = 0.123456789012345
	dir := t.TempDir()

	for _, name := range []string{"model.json", "model.json.gz"} {
		path := filepath.Join(dir, name)
		require.NoError(t, m.Save(path))
		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, m, loaded)
	}

	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf, true))
	loaded, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.Genes, loaded.Genes)
	assert.Equal(t, m.Classes, loaded.Classes)

	_, err = Read(bytes.NewBufferString(`{"genes": ["a"]}`))
	var ime *errors.InvalidModelError
	assert.True(t, errors.As(err, &ime))

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestMajorityVote(t *testing.T) {
	got, err := MajorityVote([]string{"A", "A", "A", "B"}, []string{"c", "c", "c", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A", "A", "A"}, got)

	got, err = MajorityVote([]string{"B", "A", "B", "A"}, []string{"c", "c", "c", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A", "A", "A"}, got, "ties go to the smallest label")

	got, err = MajorityVote(
		[]string{"T", "T", "B", "B", "B", "NK"},
		[]string{"0", "0", "0", "1", "1", "1"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"T", "T", "T", "B", "B", "B"}, got)

	_, err = MajorityVote([]string{"A"}, []string{"0", "1"})
	var lm *errors.LengthMismatchError
	assert.True(t, errors.As(err, &lm))
}
