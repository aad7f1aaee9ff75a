package train

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/dataio"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/preprocessing"
)

// Data は学習に使う log1p 正規化済みの行列、細胞ラベル、遺伝子名
type Data struct {
	X      *mat.Dense
	Labels []string
	Genes  []string
}

// Prepare はメモリ上の行列から Data を作る。
// 行列・ラベル・遺伝子名はすべて必須で、長さと log1p 正規化を検証する。
func Prepare(X *mat.Dense, labels, genes []string) (*Data, error) {
	if X == nil {
		return nil, errors.NewMissingArgumentError("train.Prepare", "X", "training data is required")
	}
	if labels == nil {
		return nil, errors.NewMissingArgumentError("train.Prepare", "labels", "training labels are required")
	}
	if genes == nil {
		return nil, errors.NewMissingArgumentError("train.Prepare", "genes", "required together with an in-memory matrix")
	}
	r, c := X.Dims()
	if len(labels) != r {
		return nil, errors.NewLengthMismatchError("train.Prepare", "cells", r, "labels", len(labels))
	}
	if len(genes) != c {
		return nil, errors.NewDimensionMismatchError("train.Prepare", "genes", "", c, len(genes))
	}
	if err := preprocessing.CheckLog1pTotals(X, nil); err != nil {
		return nil, err
	}
	return &Data{
		X:      X,
		Labels: append([]string(nil), labels...),
		Genes:  append([]string(nil), genes...),
	}, nil
}

// Load は path の発現ファイルを dataio で読み込み、labels と組み合わせる。
// mtx では遺伝子名を dataio.WithGeneFile か dataio.WithGenes で渡す。
func Load(path string, labels []string, options ...dataio.LoadOption) (*Data, error) {
	if path == "" {
		return nil, errors.NewMissingArgumentError("train.Load", "X", "training data is required")
	}
	if labels == nil {
		return nil, errors.NewMissingArgumentError("train.Load", "labels", "training labels are required")
	}
	ds, err := dataio.Load(path, options...)
	if err != nil {
		return nil, err
	}
	return Prepare(ds.X, labels, ds.Genes)
}

// ReadLabels は1行1ラベルのファイルを読む
func ReadLabels(path string) ([]string, error) {
	return dataio.ReadLines(path)
}
