package dataio

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// Format は入力ファイル形式。形式ごとに専用のパーサを持つ。
// 実装は Delimited と MatrixMarket のみ。
type Format interface {
	// Name は形式の表示名
	Name() string
	parse(path string) (*table, error)
}

// table はファイルに書かれたままの向きの行列と行・列名（無い場合は nil）
type table struct {
	X        *mat.Dense
	RowNames []string
	ColNames []string
}

func (t *table) transpose() *table {
	return &table{
		X:        mat.DenseCopyOf(t.X.T()),
		RowNames: t.ColNames,
		ColNames: t.RowNames,
	}
}

// Delimited は1行目が列名、1列目が行名の区切り文字形式 (CSV/TSV)
type Delimited struct {
	Comma rune
}

// MatrixMarket は座標形式の MatrixMarket ファイル（gzip 可）。
// 行名と列名は付随ファイルで与える。
type MatrixMarket struct {
	Gzip bool
}

// Name implements Format.
func (d Delimited) Name() string {
	if d.Comma == ',' {
		return "csv"
	}
	return "tsv"
}

// Name implements Format.
func (m MatrixMarket) Name() string {
	if m.Gzip {
		return "mtx.gz"
	}
	return "mtx"
}

// DetectFormat はファイル名の拡張子から形式を判定する
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".mtx.gz"):
		return MatrixMarket{Gzip: true}, nil
	case strings.HasSuffix(lower, ".mtx"):
		return MatrixMarket{}, nil
	case strings.HasSuffix(lower, ".csv"):
		return Delimited{Comma: ','}, nil
	case strings.HasSuffix(lower, ".tsv"), strings.HasSuffix(lower, ".tab"), strings.HasSuffix(lower, ".txt"):
		return Delimited{Comma: '\t'}, nil
	case strings.HasSuffix(lower, ".h5ad"):
		return nil, errors.NewInputFormatError(filepath.Base(path),
			"h5ad files are not supported; export the matrix as mtx with gene and cell files")
	default:
		return nil, errors.NewInputFormatError(filepath.Base(path),
			"unsupported file type; supported types are .csv, .txt, .tsv, .tab, .mtx and .mtx.gz")
	}
}

func (d Delimited) parse(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", filepath.Base(path))
	}
	defer f.Close()

	source := filepath.Base(path)
	reader := csv.NewReader(bufio.NewReader(f))
	reader.Comma = d.Comma
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewInputFormatError(source, "empty file")
	}
	if err != nil {
		return nil, errors.NewInputFormatErrorf(source, "read header: %v", err)
	}
	if len(header) < 2 {
		return nil, errors.NewInputFormatError(source, "header must contain at least one column name after the row name column")
	}
	cols := make([]string, len(header)-1)
	for j, h := range header[1:] {
		cols[j] = strings.TrimSpace(h)
	}

	var rows []string
	var data []float64
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewInputFormatErrorf(source, "line %d: %v", line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) != len(header) {
			return nil, errors.NewInputFormatErrorf(source, "line %d has %d fields, header has %d", line, len(rec), len(header))
		}
		rows = append(rows, strings.TrimSpace(rec[0]))
		for j, field := range rec[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.NewInputFormatErrorf(source, "line %d, column %q: %v", line, cols[j], err)
			}
			data = append(data, v)
		}
	}
	if len(rows) == 0 {
		return nil, errors.NewInputFormatError(source, "no data rows")
	}
	return &table{X: mat.NewDense(len(rows), len(cols), data), RowNames: rows, ColNames: cols}, nil
}

func (m MatrixMarket) parse(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", filepath.Base(path))
	}
	defer f.Close()

	var r io.Reader = f
	if m.Gzip {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.NewInputFormatErrorf(filepath.Base(path), "open gzip stream: %v", err)
		}
		defer gz.Close()
		r = gz
	}
	X, err := readMatrixMarket(r, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	return &table{X: X}, nil
}

// readMatrixMarket は "%%MatrixMarket matrix coordinate <real|integer|pattern> <general|symmetric>"
// を読む。添字は 1 始まり。同じ座標が複数回現れた場合は加算する。
func readMatrixMarket(r io.Reader, source string) (*mat.Dense, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() {
		return nil, errors.NewInputFormatError(source, "empty MatrixMarket file")
	}
	banner := strings.Fields(strings.ToLower(sc.Text()))
	if len(banner) != 5 || banner[0] != "%%matrixmarket" || banner[1] != "matrix" {
		return nil, errors.NewInputFormatError(source, "missing MatrixMarket banner line")
	}
	if banner[2] != "coordinate" {
		return nil, errors.NewInputFormatErrorf(source, "only coordinate matrices are supported, got %s", banner[2])
	}
	field, symmetry := banner[3], banner[4]
	switch field {
	case "real", "integer", "pattern":
	default:
		return nil, errors.NewInputFormatErrorf(source, "unsupported field type %s", field)
	}
	if symmetry != "general" && symmetry != "symmetric" {
		return nil, errors.NewInputFormatErrorf(source, "unsupported symmetry %s", symmetry)
	}

	var X *mat.Dense
	var nRows, nCols, nnz, seen int
	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "%") {
			continue
		}
		fields := strings.Fields(text)
		if X == nil {
			if len(fields) != 3 {
				return nil, errors.NewInputFormatErrorf(source, "line %d: expected \"rows cols entries\"", line)
			}
			dims := make([]int, 3)
			for k, s := range fields {
				v, err := strconv.Atoi(s)
				if err != nil || v < 0 {
					return nil, errors.NewInputFormatErrorf(source, "line %d: invalid size %q", line, s)
				}
				dims[k] = v
			}
			nRows, nCols, nnz = dims[0], dims[1], dims[2]
			if nRows == 0 || nCols == 0 {
				return nil, errors.NewInputFormatError(source, "matrix has no rows or columns")
			}
			X = mat.NewDense(nRows, nCols, nil)
			continue
		}

		want := 3
		if field == "pattern" {
			want = 2
		}
		if len(fields) != want {
			return nil, errors.NewInputFormatErrorf(source, "line %d: expected %d fields, got %d", line, want, len(fields))
		}
		i, err1 := strconv.Atoi(fields[0])
		j, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil || i < 1 || j < 1 || i > nRows || j > nCols {
			return nil, errors.NewInputFormatErrorf(source, "line %d: index out of range", line)
		}
		v := 1.0
		if field != "pattern" {
			var err error
			if v, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, errors.NewInputFormatErrorf(source, "line %d: %v", line, err)
			}
		}
		X.Set(i-1, j-1, X.At(i-1, j-1)+v)
		if symmetry == "symmetric" && i != j {
			X.Set(j-1, i-1, X.At(j-1, i-1)+v)
		}
		seen++
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewInputFormatErrorf(source, "read: %v", err)
	}
	if X == nil {
		return nil, errors.NewInputFormatError(source, "missing size line")
	}
	if seen != nnz {
		return nil, errors.NewInputFormatErrorf(source, "header declares %d entries, found %d", nnz, seen)
	}
	return X, nil
}

// ReadLines は1行1項目のファイル（遺伝子名、細胞名、ラベル）を読む。
// 区切り文字がある行は最初の列だけを使う。空行は無視する。
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", filepath.Base(path))
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		text := strings.TrimRight(sc.Text(), "\r")
		if i := strings.IndexAny(text, ",\t"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	return out, nil
}
