package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/celltypist/celltype"
)

// writeCounts は 3 種類の細胞のカウント CSV とラベルファイルを書く
func writeCounts(t *testing.T, dir string, perType int) (string, string) {
	t.Helper()
	types := []string{"B", "NK", "T"}
	genes := 9

	var csv strings.Builder
	csv.WriteString("cell")
	for j := 0; j < genes; j++ {
		fmt.Fprintf(&csv, ",g%d", j)
	}
	csv.WriteString("\n")
	var labels strings.Builder
	for i := 0; i < perType*len(types); i++ {
		k := i % len(types)
		fmt.Fprintf(&csv, "c%d", i)
		for j := 0; j < genes; j++ {
			v := (i + j) % 3
			if j%len(types) == k {
				v += 25
			}
			fmt.Fprintf(&csv, ",%d", v)
		}
		csv.WriteString("\n")
		labels.WriteString(types[k] + "\n")
	}

	input := filepath.Join(dir, "counts.csv")
	require.NoError(t, os.WriteFile(input, []byte(csv.String()), 0o644))
	labelPath := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(labelPath, []byte(labels.String()), 0o644))
	return input, labelPath
}

func TestParsePredict(t *testing.T) {
	inv, err := ParsePredict([]string{"--input", "x.csv", "--model", "m.json", "--majority-voting", "--over-clustering-resolution", "2.5", "--outdir", "out/"})
	require.NoError(t, err)
	assert.True(t, inv.MajorityVoting)
	assert.Equal(t, 2.5, inv.Resolution)
	assert.Equal(t, "out", inv.OutDir)
	assert.Equal(t, "info", inv.LogLevel)

	tests := []struct {
		name string
		args []string
	}{
		{"missing input", []string{"--model", "m.json"}},
		{"missing model", []string{"--input", "x.csv"}},
		{"negative resolution", []string{"--input", "x.csv", "--model", "m", "--over-clustering-resolution", "-1"}},
		{"bad plot format", []string{"--input", "x.csv", "--model", "m", "--plot-format", "gif"}},
		{"unknown flag", []string{"--input", "x.csv", "--model", "m", "--bogus"}},
		{"positional", []string{"--input", "x.csv", "--model", "m", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePredict(tt.args)
			var invErr *InvocationError
			require.ErrorAs(t, err, &invErr)
			assert.Equal(t, ExitInvalidInvocation, invErr.ExitCode)
		})
	}
}

func TestParseTrain(t *testing.T) {
	inv, err := ParseTrain([]string{"--input", "x.csv", "--labels", "l.txt", "--out", "m.json", "--mini-batch", "--batch-size", "50"})
	require.NoError(t, err)
	assert.True(t, inv.MiniBatch)
	assert.Equal(t, 50, inv.BatchSize)
	assert.Equal(t, 100, inv.BatchNumber)
	assert.Equal(t, 1e-4, inv.Alpha)

	_, err = ParseTrain([]string{"--input", "x.csv", "--labels", "l.txt"})
	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Contains(t, invErr.Message, "--out")

	_, err = ParseTrain([]string{"--input", "x.csv", "--labels", "l.txt", "--out", "m", "--alpha", "0"})
	assert.ErrorAs(t, err, &invErr)
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, ExitInvalidInvocation, Run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage")

	stderr.Reset()
	assert.Equal(t, ExitInvalidInvocation, Run([]string{"classify"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "classify"`)

	assert.Equal(t, ExitSuccess, Run([]string{"help"}, &stdout, &stderr))

	stderr.Reset()
	assert.Equal(t, ExitInvalidInvocation, Run([]string{"predict", "--input", "x", "--model", "m", "--log-level", "loud"}, &stdout, &stderr))
}

func TestRunTrainThenPredict(t *testing.T) {
	dir := t.TempDir()
	input, labels := writeCounts(t, dir, 10)
	modelPath := filepath.Join(dir, "model.json.gz")

	var stdout, stderr bytes.Buffer
	code := Run([]string{"train",
		"--input", input, "--labels", labels, "--out", modelPath,
		"--details", "toy", "--seed", "3", "--log-level", "error",
	}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Contains(t, stdout.String(), "3 cell types")

	m, err := celltype.Load(modelPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "NK", "T"}, m.Classes)
	assert.Equal(t, "toy", m.Description.Details)

	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(outDir, 0o755))
	stdout.Reset()
	code = Run([]string{"predict",
		"--input", input, "--model", modelPath,
		"--outdir", outDir, "--prefix", "pbmc_", "--xlsx", "--log-level", "error",
	}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Equal(t, "30 cells predicted into 3 cell types\n", stdout.String())
	_, err = os.Stat(filepath.Join(outDir, "pbmc_annotation_result.xlsx"))
	assert.NoError(t, err)
}

func TestRunPipelineFailure(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := Run([]string{"predict",
		"--input", filepath.Join(dir, "missing.csv"), "--model", filepath.Join(dir, "missing.json"),
		"--log-level", "error",
	}, &stdout, &stderr)
	assert.Equal(t, ExitPipelineFailure, code)
	assert.Contains(t, stderr.String(), "celltypist:")
}
