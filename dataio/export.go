package dataio

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// Sheet names of the Excel workbook.
const (
	LabelsSheet        = "Predicted Labels"
	ProbabilitiesSheet = "Probability Matrix"
)

// LabelColumn is one per-cell label column of an annotation table.
type LabelColumn struct {
	Name   string
	Values []string
}

func checkColumns(op string, cells []string, cols []LabelColumn) error {
	for _, c := range cols {
		if len(c.Values) != len(cells) {
			return errors.NewLengthMismatchError(op, "cells", len(cells), c.Name, len(c.Values))
		}
	}
	return nil
}

func checkProba(op string, cells, classes []string, proba mat.Matrix) error {
	r, c := proba.Dims()
	if r != len(cells) {
		return errors.NewLengthMismatchError(op, "cells", len(cells), "probability rows", r)
	}
	if c != len(classes) {
		return errors.NewLengthMismatchError(op, "classes", len(classes), "probability columns", c)
	}
	return nil
}

// WriteLabelsCSV writes one row per cell: the cell name followed by every label column.
func WriteLabelsCSV(w io.Writer, cells []string, cols []LabelColumn) error {
	if err := checkColumns("WriteLabelsCSV", cells, cols); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	header := make([]string, 1, len(cols)+1)
	for _, c := range cols {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "write labels header")
	}
	row := make([]string, len(cols)+1)
	for i, cell := range cells {
		row[0] = cell
		for j, c := range cols {
			row[j+1] = c.Values[i]
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "write labels")
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// WriteProbabilitiesCSV writes the cell × class probability matrix.
func WriteProbabilitiesCSV(w io.Writer, cells, classes []string, proba mat.Matrix) error {
	if err := checkProba("WriteProbabilitiesCSV", cells, classes, proba); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{""}, classes...)); err != nil {
		return errors.Wrap(err, "write probability header")
	}
	row := make([]string, len(classes)+1)
	for i, cell := range cells {
		row[0] = cell
		for j := range classes {
			row[j+1] = strconv.FormatFloat(proba.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "write probabilities")
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// WriteCSVFile creates path and fills it with write.
func WriteCSVFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	return write(f)
}

// WriteWorkbook saves an .xlsx workbook with the label table on the
// "Predicted Labels" sheet and the probabilities on "Probability Matrix".
func WriteWorkbook(path string, cells []string, cols []LabelColumn, classes []string, proba mat.Matrix) (err error) {
	if err := checkColumns("WriteWorkbook", cells, cols); err != nil {
		return err
	}
	if err := checkProba("WriteWorkbook", cells, classes, proba); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close workbook")
		}
	}()

	if err := f.SetSheetName("Sheet1", LabelsSheet); err != nil {
		return errors.Wrap(err, "rename sheet")
	}
	if _, err := f.NewSheet(ProbabilitiesSheet); err != nil {
		return errors.Wrap(err, "create sheet")
	}

	header := make([]interface{}, 1, len(cols)+1)
	header[0] = ""
	for _, c := range cols {
		header = append(header, c.Name)
	}
	if err := setRow(f, LabelsSheet, 1, header); err != nil {
		return err
	}
	for i, cell := range cells {
		row := make([]interface{}, len(cols)+1)
		row[0] = cell
		for j, c := range cols {
			row[j+1] = c.Values[i]
		}
		if err := setRow(f, LabelsSheet, i+2, row); err != nil {
			return err
		}
	}

	header = make([]interface{}, len(classes)+1)
	header[0] = ""
	for j, c := range classes {
		header[j+1] = c
	}
	if err := setRow(f, ProbabilitiesSheet, 1, header); err != nil {
		return err
	}
	for i, cell := range cells {
		row := make([]interface{}, len(classes)+1)
		row[0] = cell
		for j := range classes {
			row[j+1] = proba.At(i, j)
		}
		if err := setRow(f, ProbabilitiesSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return errors.Wrapf(err, "write %s row %d", sheet, row)
	}
	return nil
}
