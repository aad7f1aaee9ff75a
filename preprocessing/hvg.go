package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// HVGOptions は Seurat 方式の高変動遺伝子選択のパラメータ
type HVGOptions struct {
	MinMean       float64
	MaxMean       float64
	MinDispersion float64
	NBins         int
}

// DefaultHVGOptions は scanpy の highly_variable_genes と同じ既定値を返す
func DefaultHVGOptions() HVGOptions {
	return HVGOptions{
		MinMean:       0.0125,
		MaxMean:       3,
		MinDispersion: 0.5,
		NBins:         20,
	}
}

// HighlyVariableGenes は log1p 正規化済みの X から高変動遺伝子の列インデックスを返す。
//
// 各遺伝子について expm1 空間の平均と分散から分散/平均 (dispersion) を求め、
// log 平均を NBins 個の等幅ビンに分けてビン内で dispersion を標準化する。
// 平均が (MinMean, MaxMean) にあり、標準化 dispersion が MinDispersion を超える
// 遺伝子を選ぶ。
func HighlyVariableGenes(X mat.Matrix, opts HVGOptions) []int {
	r, c := X.Dims()
	if r < 2 || c == 0 {
		return nil
	}
	if opts.NBins <= 0 {
		opts.NBins = 20
	}

	logMean := make([]float64, c)
	logDisp := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			col[i] = math.Expm1(X.At(i, j))
		}
		mean, variance := stat.MeanVariance(col, nil)
		if mean == 0 {
			mean = 1e-12
		}
		disp := variance / mean
		if disp == 0 {
			disp = math.NaN()
		} else {
			disp = math.Log(disp)
		}
		logMean[j] = math.Log1p(mean)
		logDisp[j] = disp
	}

	// 平均の等幅ビン
	lo, hi := logMean[0], logMean[0]
	for _, m := range logMean {
		lo = math.Min(lo, m)
		hi = math.Max(hi, m)
	}
	width := (hi - lo) / float64(opts.NBins)
	bins := make([]int, c)
	for j, m := range logMean {
		b := 0
		if width > 0 {
			b = int((m - lo) / width)
			if b >= opts.NBins {
				b = opts.NBins - 1
			}
		}
		bins[j] = b
	}

	members := make([][]float64, opts.NBins)
	for j, d := range logDisp {
		if !math.IsNaN(d) {
			members[bins[j]] = append(members[bins[j]], d)
		}
	}
	binMean := make([]float64, opts.NBins)
	binStd := make([]float64, opts.NBins)
	for b, ds := range members {
		switch len(ds) {
		case 0:
			binMean[b], binStd[b] = math.NaN(), math.NaN()
		case 1:
			// 1遺伝子だけのビンは標準化 dispersion が 1 になるようにする
			binMean[b], binStd[b] = 0, ds[0]
		default:
			binMean[b], binStd[b] = stat.MeanStdDev(ds, nil)
		}
	}

	var selected []int
	for j := 0; j < c; j++ {
		d := logDisp[j]
		if math.IsNaN(d) {
			continue
		}
		std := binStd[bins[j]]
		if std == 0 || math.IsNaN(std) {
			continue
		}
		norm := (d - binMean[bins[j]]) / std
		if logMean[j] > opts.MinMean && logMean[j] < opts.MaxMean && norm > opts.MinDispersion {
			selected = append(selected, j)
		}
	}
	return selected
}
