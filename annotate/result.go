package annotate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/dataio"
	"github.com/YuminosukeSato/celltypist/metrics"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// Label column names.
const (
	PredictedLabels = "predicted_labels"
	OverClustering  = "over_clustering"
	MajorityVoting  = "majority_voting"
)

// AnnotationResult holds the per-cell output of one annotation run.
// Rows follow the cell order of the input dataset.
type AnnotationResult struct {
	Cells   []string
	Classes []string

	PredictedLabels []string
	// Probabilities is cells × classes; every row sums to 1.
	Probabilities *mat.Dense

	// OverClustering and MajorityVoting are nil unless majority voting ran.
	OverClustering []string
	MajorityVoting []string

	// Dataset is the input the result was computed from.
	Dataset *dataio.Dataset
}

// NCells returns the number of annotated cells.
func (r *AnnotationResult) NCells() int {
	return len(r.Cells)
}

// Column returns a label column by name.
func (r *AnnotationResult) Column(name string) ([]string, error) {
	var col []string
	switch name {
	case PredictedLabels:
		col = r.PredictedLabels
	case OverClustering:
		col = r.OverClustering
	case MajorityVoting:
		col = r.MajorityVoting
	default:
		return nil, errors.NewValidationError("column", "unknown label column", name)
	}
	if col == nil {
		return nil, errors.NewMissingArgumentError("AnnotationResult.Column", name, "majority voting was not run")
	}
	return col, nil
}

// LabelColumns returns every label column that is present, in a fixed order.
func (r *AnnotationResult) LabelColumns() []dataio.LabelColumn {
	cols := []dataio.LabelColumn{{Name: PredictedLabels, Values: r.PredictedLabels}}
	if r.OverClustering != nil {
		cols = append(cols, dataio.LabelColumn{Name: OverClustering, Values: r.OverClustering})
	}
	if r.MajorityVoting != nil {
		cols = append(cols, dataio.LabelColumn{Name: MajorityVoting, Values: r.MajorityVoting})
	}
	return cols
}

// SummaryFrequency counts the labels of a column, most frequent first.
// Equal counts are ordered by label.
func (r *AnnotationResult) SummaryFrequency(column string) ([]metrics.LabelCount, error) {
	col, err := r.Column(column)
	if err != nil {
		return nil, err
	}
	return metrics.Frequencies(col), nil
}

func (r *AnnotationResult) String() string {
	column := PredictedLabels
	if r.MajorityVoting != nil {
		column = MajorityVoting
	}
	freq, _ := r.SummaryFrequency(column)
	return fmt.Sprintf("%d cells predicted into %d cell types", r.NCells(), len(freq))
}

// ExportOptions control WriteTables.
type ExportOptions struct {
	Prefix string
	// Excel writes one workbook instead of two CSV files.
	Excel bool
}

// WriteTables writes the label table and probability matrix into dir, which
// must already exist. It returns the paths written.
func (r *AnnotationResult) WriteTables(dir string, opts ExportOptions) ([]string, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, errors.NewInputFormatError(dir, "output folder does not exist")
	}

	if opts.Excel {
		path := filepath.Join(dir, opts.Prefix+"annotation_result.xlsx")
		if err := dataio.WriteWorkbook(path, r.Cells, r.LabelColumns(), r.Classes, r.Probabilities); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	labels := filepath.Join(dir, opts.Prefix+"predicted_labels.csv")
	if err := dataio.WriteCSVFile(labels, func(w io.Writer) error {
		return dataio.WriteLabelsCSV(w, r.Cells, r.LabelColumns())
	}); err != nil {
		return nil, err
	}
	proba := filepath.Join(dir, opts.Prefix+"probability_matrix.csv")
	if err := dataio.WriteCSVFile(proba, func(w io.Writer) error {
		return dataio.WriteProbabilitiesCSV(w, r.Cells, r.Classes, r.Probabilities)
	}); err != nil {
		return nil, err
	}
	return []string{labels, proba}, nil
}
