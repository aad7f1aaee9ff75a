// Package dataio loads expression matrices from disk into a Dataset and
// writes annotation results back out as CSV tables and Excel workbooks.
package dataio

import (
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/sklearn/neighbors"
)

// Dataset は細胞 × 遺伝子の発現行列と、その行・列の名前
type Dataset struct {
	// X は log1p 正規化済みの発現量（細胞 × 遺伝子）
	X     *mat.Dense
	Cells []string
	Genes []string

	// Graph は近傍グラフ。設定済みなら過剰クラスタリングで再利用される。
	Graph *neighbors.Graph
	// Embedding は可視化に使う2次元以上の埋め込み（細胞 × 次元）
	Embedding *mat.Dense
}

// NewDataset は行列と名前の長さを検証して Dataset を作る
func NewDataset(X *mat.Dense, cells, genes []string) (*Dataset, error) {
	if X == nil {
		return nil, errors.NewMissingArgumentError("NewDataset", "matrix", "an expression matrix is required")
	}
	r, c := X.Dims()
	if cells == nil {
		cells = IndexNames(r)
	}
	if len(cells) != r {
		return nil, errors.NewDimensionMismatchError("NewDataset", "cells", "", r, len(cells))
	}
	if len(genes) != c {
		return nil, errors.NewDimensionMismatchError("NewDataset", "genes", "", c, len(genes))
	}
	return &Dataset{X: X, Cells: cells, Genes: genes}, nil
}

// NCells は細胞数を返す
func (d *Dataset) NCells() int {
	return len(d.Cells)
}

// NGenes は遺伝子数を返す
func (d *Dataset) NGenes() int {
	return len(d.Genes)
}

// MakeUnique は重複した名前に "-1", "-2", ... を付けて一意にする。
// 最初に現れたものは元の名前のまま。変更した数も返す。
func MakeUnique(names []string) ([]string, int) {
	out := make([]string, len(names))
	taken := make(map[string]struct{}, len(names))
	for _, n := range names {
		taken[n] = struct{}{}
	}
	seen := make(map[string]int, len(names))
	renamed := 0
	for i, n := range names {
		count, dup := seen[n]
		seen[n] = count + 1
		if !dup {
			out[i] = n
			continue
		}
		suffix := count
		candidate := n + "-" + strconv.Itoa(suffix)
		for {
			if _, clash := taken[candidate]; !clash {
				break
			}
			suffix++
			candidate = n + "-" + strconv.Itoa(suffix)
		}
		seen[n] = suffix + 1
		taken[candidate] = struct{}{}
		out[i] = candidate
		renamed++
	}
	return out, renamed
}

// IndexNames は "0", "1", ... を返す
func IndexNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	return names
}
