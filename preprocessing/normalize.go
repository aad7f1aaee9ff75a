package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// TargetSum は正規化後の1細胞あたりの総カウント
const TargetSum = 1e4

// NormalizeTotal は各行（細胞）の合計が target になるようにスケールする。
// 合計が0の行はそのまま残す。X はその場で更新される。
func NormalizeTotal(X *mat.Dense, target float64) {
	r, _ := X.Dims()
	for i := 0; i < r; i++ {
		row := X.RawRowView(i)
		sum := floats.Sum(row)
		if sum == 0 {
			continue
		}
		floats.Scale(target/sum, row)
	}
}

// Log1p は全要素に log(1+x) を適用する。X はその場で更新される。
func Log1p(X *mat.Dense) {
	X.Apply(func(_, _ int, v float64) float64 { return math.Log1p(v) }, X)
}

// NormalizeLog1p は NormalizeTotal(TargetSum) の後に Log1p を適用する
func NormalizeLog1p(X *mat.Dense) {
	NormalizeTotal(X, TargetSum)
	Log1p(X)
}

// CheckLog1pTotals は各行が log1p(10000正規化) であることを検証する。
// |Σ(exp(v)-1) - 10000| > 1 の行があれば、その行を示す InputFormatError を返す。
func CheckLog1pTotals(X mat.Matrix, rowNames []string) error {
	r, c := X.Dims()
	for i := 0; i < r; i++ {
		total := 0.0
		for j := 0; j < c; j++ {
			total += math.Expm1(X.At(i, j))
		}
		if math.IsNaN(total) || math.Abs(total-TargetSum) > 1 {
			name := ""
			if i < len(rowNames) {
				name = rowNames[i]
			}
			return errors.NewInputFormatErrorf("expression matrix",
				"cell %d (%s) sums to %.3f after expm1; expected log1p-normalized expression (%.0f counts per cell)",
				i, name, total, TargetSum)
		}
	}
	return nil
}

// NonZeroColumns は列和が 0 でない列のインデックスを返す
func NonZeroColumns(X mat.Matrix) []int {
	r, c := X.Dims()
	keep := make([]int, 0, c)
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += X.At(i, j)
		}
		if sum != 0 {
			keep = append(keep, j)
		}
	}
	return keep
}

// ColumnsExpressedIn は minCells 個以上の行で非ゼロの列のインデックスを返す
func ColumnsExpressedIn(X mat.Matrix, minCells int) []int {
	r, c := X.Dims()
	keep := make([]int, 0, c)
	for j := 0; j < c; j++ {
		n := 0
		for i := 0; i < r && n < minCells; i++ {
			if X.At(i, j) != 0 {
				n++
			}
		}
		if n >= minCells {
			keep = append(keep, j)
		}
	}
	return keep
}

// SelectColumns は指定された列だけを指定順に持つ新しい行列を返す
func SelectColumns(X mat.Matrix, cols []int) *mat.Dense {
	r, _ := X.Dims()
	if r == 0 || len(cols) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(r, len(cols), nil)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		for k, j := range cols {
			row[k] = X.At(i, j)
		}
	}
	return out
}

// SelectRows は指定された行だけを指定順に持つ新しい行列を返す
func SelectRows(X mat.Matrix, rows []int) *mat.Dense {
	_, c := X.Dims()
	if c == 0 || len(rows) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(rows), c, nil)
	for k, i := range rows {
		row := out.RawRowView(k)
		for j := 0; j < c; j++ {
			row[j] = X.At(i, j)
		}
	}
	return out
}

// SelectStrings は names から idx の要素を順に取り出す
func SelectStrings(names []string, idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = names[i]
	}
	return out
}
