package errors

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "input format with source",
			err:     NewInputFormatError("cells.h5ad", "unsupported file format"),
			wantMsg: `celltypist: invalid input "cells.h5ad": unsupported file format`,
		},
		{
			name:    "input format without source",
			err:     NewInputFormatErrorf("", "expected %d columns", 3),
			wantMsg: "celltypist: invalid input: expected 3 columns",
		},
		{
			name:    "dimension mismatch with source",
			err:     NewDimensionMismatchError("LoadMTX", "genes", "genes.tsv", 10, 9),
			wantMsg: "celltypist: LoadMTX: the number of genes in genes.tsv (9) does not match the matrix (10)",
		},
		{
			name:    "feature mismatch",
			err:     NewFeatureMismatchError(200, 50),
			wantMsg: "celltypist: no features overlap between the model (200 genes) and the input (50 genes)",
		},
		{
			name:    "invalid model",
			err:     NewInvalidModelError("scaler_scale", "non-positive value at index %d", 4),
			wantMsg: "celltypist: invalid model: scaler_scale: non-positive value at index 4",
		},
		{
			name:    "length mismatch",
			err:     NewLengthMismatchError("MajorityVote", "labels", 5, "clusters", 4),
			wantMsg: "celltypist: MajorityVote: length of labels (5) does not match length of clusters (4)",
		},
		{
			name:    "insufficient data with hint",
			err:     NewInsufficientDataError("Train", 1000, 10, "use full-batch mode"),
			wantMsg: "celltypist: Train: 10 cells available, 1000 required. use full-batch mode",
		},
		{
			name:    "insufficient features",
			err:     NewInsufficientFeaturesError("SelectFeatures", 300, 200),
			wantMsg: "celltypist: SelectFeatures: the number of genes (200) is not larger than the requested top genes (300)",
		},
		{
			name:    "missing argument",
			err:     NewMissingArgumentError("LoadMTX", "gene file", ""),
			wantMsg: "celltypist: LoadMTX: missing gene file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestTypedErrorsAreRecoverable(t *testing.T) {
	wrapped := Wrap(NewFeatureMismatchError(3, 4), "annotate")

	var fm *FeatureMismatchError
	require.True(t, As(wrapped, &fm))
	assert.Equal(t, 3, fm.ModelFeatures)
	assert.Equal(t, 4, fm.InputFeatures)

	var ime *InvalidModelError
	assert.False(t, As(wrapped, &ime))
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("SGDClassifier", "Predict")

	want := "celltypist: SGDClassifier: this model is not fitted yet. Call Fit() before using Predict()"
	assert.Equal(t, want, err.Error())

	var notFittedErr *NotFittedError
	assert.True(t, As(err, &notFittedErr))
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Transform", 5, 3, 1)
	assert.Equal(t, "celltypist: Transform: dimension mismatch on axis 1 (features). Expected 5, got 3", err.Error())

	err = NewDimensionError("Fit", 10, 8, 0)
	assert.Contains(t, err.Error(), "(rows)")
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("SGDClassifier", 1000, "loss did not decrease")
	assert.Equal(t, "SGDClassifier failed to converge after 1000 iterations: loss did not decrease", warn.Error())

	warn = NewConvergenceWarning("SGDClassifier", 5, "")
	assert.Contains(t, warn.Error(), "Consider increasing max_iter")
}

func TestWarnDispatch(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(nil)

	Warn(NewConvergenceWarning("SGDClassifier", 3, ""))
	require.Len(t, got, 1)

	var zlGot []error
	SetZerologWarnFunc(func(w error) { zlGot = append(zlGot, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewConvergenceWarning("SGDClassifier", 4, ""))
	assert.Len(t, got, 1, "zerolog sink takes precedence over the plain handler")
	assert.Len(t, zlGot, 1)
}

func TestMarshalZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var le *LengthMismatchError
	require.True(t, As(NewLengthMismatchError("MajorityVote", "labels", 5, "clusters", 4), &le))
	logger.Error().EmbedObject(le).Msg("vote failed")

	out := buf.String()
	assert.Contains(t, out, `"type":"LengthMismatchError"`)
	assert.Contains(t, out, `"n_left":5`)
	assert.Contains(t, out, `"n_right":4`)
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrEmptyData, "in Annotator.Annotate")

	assert.True(t, Is(wrapped, ErrEmptyData))
	assert.Contains(t, wrapped.Error(), "in Annotator.Annotate")
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)

	assert.True(t, Is(wrapped, ErrEmptyData))
	assert.Contains(t, wrapped.Error(), "in Predict: expected 10, got 5")
}

func TestErrorChaining(t *testing.T) {
	err1 := fmt.Errorf("base error")
	err2 := Wrap(err1, "wrapped once")
	err3 := Wrap(err2, "wrapped twice")

	assert.True(t, strings.Contains(err3.Error(), "base error"))

	formatted := fmt.Sprintf("%+v", NewInvalidModelError("coef", "empty"))
	assert.Contains(t, formatted, "errors_test.go", "detailed format carries the stack trace")
}

func TestCheckMatrix(t *testing.T) {
	ok := fakeMatrix{{1, 2}, {3, 4}}
	assert.NoError(t, CheckMatrix("Standardize", ok, 2, 2, 0))

	bad := fakeMatrix{{1, 2}, {3, nan()}}
	err := CheckMatrix("Standardize", bad, 2, 2, 7)
	var nie *NumericalInstabilityError
	require.True(t, As(err, &nie))
	assert.Equal(t, 7, nie.Iteration)

	assert.Error(t, CheckScalar("loss", inf(), 1))
	assert.InDelta(t, 0.5, Sigmoid(0), 1e-12)
	assert.InDelta(t, 0.0, Sigmoid(-800), 1e-12)
	assert.InDelta(t, 1.0, Sigmoid(800), 1e-12)
}

type fakeMatrix [][]float64

func (m fakeMatrix) At(i, j int) float64 { return m[i][j] }

func nan() float64 {
	zero := 0.0
	return zero / zero
}

func inf() float64 {
	zero := 0.0
	return 1 / zero
}
