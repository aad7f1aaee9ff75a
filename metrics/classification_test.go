package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []string
		yPred []string
		want  float64
	}{
		{"perfect", []string{"T", "B", "NK"}, []string{"T", "B", "NK"}, 1.0},
		{"half", []string{"T", "B", "T", "B"}, []string{"T", "T", "T", "T"}, 0.5},
		{"none", []string{"T"}, []string{"B"}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accuracy(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	_, err := Accuracy(nil, nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = Accuracy([]string{"a"}, []string{"a", "b"})
	var lm *errors.LengthMismatchError
	assert.True(t, errors.As(err, &lm))
}

func TestContingency(t *testing.T) {
	clusters := []string{"0", "0", "0", "0", "1", "1", "1", "1"}
	labels := []string{"A", "A", "A", "B", "B", "A", "B", "A"}

	table, err := Contingency(clusters, labels)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, table.Rows)
	assert.Equal(t, []string{"A", "B"}, table.Cols)
	assert.Equal(t, [][]int{{3, 1}, {2, 2}}, table.Counts)
	assert.Equal(t, 4, table.RowTotal("1"))

	w, ok := table.Winner("0")
	require.True(t, ok)
	assert.Equal(t, "A", w)

	w, ok = table.Winner("1")
	require.True(t, ok)
	assert.Equal(t, "A", w, "ties go to the lexicographically smallest label")

	_, ok = table.Winner("missing")
	assert.False(t, ok)

	_, err = Contingency([]string{"0"}, nil)
	var lm *errors.LengthMismatchError
	assert.True(t, errors.As(err, &lm))
}

func TestFrequencies(t *testing.T) {
	got := Frequencies([]string{"T", "B", "T", "NK", "B", "T", "Mono"})
	assert.Equal(t, []LabelCount{
		{"T", 3},
		{"B", 2},
		{"Mono", 1},
		{"NK", 1},
	}, got)
	assert.Empty(t, Frequencies(nil))
}
