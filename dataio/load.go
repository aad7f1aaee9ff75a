package dataio

import (
	"path/filepath"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/pkg/log"
	"github.com/YuminosukeSato/celltypist/preprocessing"
)

// LoadOptions は Load の設定
type LoadOptions struct {
	// Transpose は遺伝子 × 細胞で書かれたファイルを細胞 × 遺伝子に直す
	Transpose bool
	// GeneFile と CellFile は MatrixMarket の付随ファイル（1行1名）
	GeneFile string
	CellFile string
	// Genes は GeneFile の代わりに直接与える遺伝子名
	Genes []string
	// Normalized は入力が既に log1p 正規化済みであることを示す
	Normalized bool

	logger log.Logger
}

// LoadOption は LoadOptions を変更する
type LoadOption func(*LoadOptions)

// WithTranspose sets LoadOptions.Transpose.
func WithTranspose(t bool) LoadOption {
	return func(o *LoadOptions) { o.Transpose = t }
}

// WithGeneFile sets the MatrixMarket gene name file.
func WithGeneFile(path string) LoadOption {
	return func(o *LoadOptions) { o.GeneFile = path }
}

// WithCellFile sets the MatrixMarket cell name file.
func WithCellFile(path string) LoadOption {
	return func(o *LoadOptions) { o.CellFile = path }
}

// WithGenes gives the gene names of a MatrixMarket file directly.
func WithGenes(genes []string) LoadOption {
	return func(o *LoadOptions) { o.Genes = genes }
}

// WithNormalized marks the input as already log1p normalized.
func WithNormalized(n bool) LoadOption {
	return func(o *LoadOptions) { o.Normalized = n }
}

// WithLoadLogger sets the logger.
func WithLoadLogger(l log.Logger) LoadOption {
	return func(o *LoadOptions) { o.logger = l }
}

// Load は path を形式に応じて読み込み、細胞 × 遺伝子の log1p 正規化済み Dataset を返す。
//
// 生カウントは 1 細胞あたり 10,000 に正規化して log1p を取る。最後に全細胞で
// Σ(exp(v)−1) が 10,000 ± 1 であることを確認し、外れた細胞があればその名前を
// 含む InputFormatError を返す。
func Load(path string, options ...LoadOption) (*Dataset, error) {
	opts := &LoadOptions{logger: log.GetLoggerWithName("dataio")}
	for _, opt := range options {
		opt(opts)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	opts.logger.Info("Loading input", log.PathKey, path, log.FormatKey, format.Name())

	t, err := format.parse(path)
	if err != nil {
		return nil, err
	}
	if opts.Transpose {
		t = t.transpose()
	}

	if _, ok := format.(MatrixMarket); ok {
		if err := attachNames(t, path, opts); err != nil {
			return nil, err
		}
	}

	genes, renamed := MakeUnique(t.ColNames)
	if renamed > 0 {
		opts.logger.Info("Renamed duplicate genes", "renamed", renamed)
	}

	if !opts.Normalized {
		preprocessing.NormalizeLog1p(t.X)
	}
	if err := preprocessing.CheckLog1pTotals(t.X, t.RowNames); err != nil {
		return nil, err
	}

	ds, err := NewDataset(t.X, t.RowNames, genes)
	if err != nil {
		return nil, err
	}
	opts.logger.Info("Input loaded", log.CellsKey, ds.NCells(), log.GenesKey, ds.NGenes())
	return ds, nil
}

// attachNames は MatrixMarket の行列に付随ファイルの名前を付ける。
// 遺伝子名は必須、細胞名は省略時に 0 からの番号になる。
func attachNames(t *table, path string, opts *LoadOptions) error {
	r, c := t.X.Dims()
	source := filepath.Base(path)

	genes := opts.Genes
	geneSource := ""
	if genes == nil {
		if opts.GeneFile == "" {
			return errors.NewMissingArgumentError("Load", "gene file", "required together with the mtx input "+source)
		}
		lines, err := ReadLines(opts.GeneFile)
		if err != nil {
			return err
		}
		genes = lines
		geneSource = filepath.Base(opts.GeneFile)
	}
	if len(genes) != c {
		return errors.NewDimensionMismatchError("Load", "genes", geneSource, c, len(genes))
	}

	cells := IndexNames(r)
	if opts.CellFile != "" {
		lines, err := ReadLines(opts.CellFile)
		if err != nil {
			return err
		}
		if len(lines) != r {
			return errors.NewDimensionMismatchError("Load", "cells", filepath.Base(opts.CellFile), r, len(lines))
		}
		cells = lines
	}

	t.ColNames = append([]string(nil), genes...)
	t.RowNames = cells
	return nil
}
