// Package celltype holds the trained cell-type model and the prediction
// core built on it: feature alignment, standardization, linear
// classification and majority voting.
package celltype

import (
	"io"
	"math"

	"github.com/YuminosukeSato/celltypist/core/model"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/preprocessing"
)

// FormatVersion is written to every saved model.
const FormatVersion = "1.0"

// Description は学習日・説明・配布元 URL
type Description struct {
	Date    string `json:"date"`
	Details string `json:"details"`
	URL     string `json:"url"`
}

// Model は学習済みの細胞型分類モデル。
// 読み込み後は変更しない。入力データに合わせた並べ替えは Align が返す
// ModelView 上で行う。
type Model struct {
	// Genes は特徴量（遺伝子）の順序付きリスト
	Genes []string `json:"genes"`

	// Classes は細胞型ラベル（重みの行順と対応）
	Classes []string `json:"classes"`

	// Coef は重み行列。多クラスでは classes × genes、2クラスでは1行。
	Coef [][]float64 `json:"coef"`

	// Intercept は重みの行ごとの切片
	Intercept []float64 `json:"intercept"`

	// ScalerMean と ScalerScale は学習時の標準化パラメータ
	ScalerMean  []float64 `json:"scaler_mean"`
	ScalerScale []float64 `json:"scaler_scale"`

	Description Description `json:"description"`
	Version     string      `json:"version"`
}

// NewModel は学習済みの重みとスケーラーからモデルを組み立てる
func NewModel(genes []string, weights *model.LinearWeights, scaler *preprocessing.StandardScaler, desc Description) (*Model, error) {
	if weights == nil {
		return nil, errors.NewMissingArgumentError("NewModel", "weights", "a fitted classifier is required")
	}
	if scaler == nil || !scaler.IsFitted() {
		return nil, errors.NewMissingArgumentError("NewModel", "scaler", "a fitted scaler is required")
	}
	w := weights.Clone()
	m := &Model{
		Genes:       append([]string(nil), genes...),
		Classes:     w.Classes,
		Coef:        w.Coef,
		Intercept:   w.Intercept,
		ScalerMean:  append([]float64(nil), scaler.Mean...),
		ScalerScale: append([]float64(nil), scaler.Scale...),
		Description: desc,
		Version:     FormatVersion,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NFeatures は遺伝子数を返す
func (m *Model) NFeatures() int {
	return len(m.Genes)
}

// IsBinary は重みが1行だけの2クラスモデルかを返す
func (m *Model) IsBinary() bool {
	return len(m.Coef) == 1
}

// Weights は分類器部分を LinearWeights として返す（コピー）
func (m *Model) Weights() *model.LinearWeights {
	w := &model.LinearWeights{
		ModelType: "SGDClassifier",
		Version:   m.Version,
		Classes:   m.Classes,
		Coef:      m.Coef,
		Intercept: m.Intercept,
		Features:  m.Genes,
		IsFitted:  true,
	}
	return w.Clone()
}

// Validate はモデルの各要素の長さと値の整合性を検証する
func (m *Model) Validate() error {
	if len(m.Genes) == 0 {
		return errors.NewInvalidModelError("genes", "model has no genes")
	}
	seen := make(map[string]struct{}, len(m.Genes))
	for _, g := range m.Genes {
		if _, dup := seen[g]; dup {
			return errors.NewInvalidModelError("genes", "duplicate gene %q", g)
		}
		seen[g] = struct{}{}
	}

	classes := make(map[string]struct{}, len(m.Classes))
	for _, c := range m.Classes {
		if _, dup := classes[c]; dup {
			return errors.NewInvalidModelError("classes", "duplicate class %q", c)
		}
		classes[c] = struct{}{}
	}

	// 列数は下で遺伝子数と突き合わせるので features は外して検証する
	w := m.Weights()
	w.Features = nil
	if err := w.Validate(); err != nil {
		return err
	}
	if n := len(m.Coef[0]); n != len(m.Genes) {
		return errors.NewInvalidModelError("coef", "has %d columns for %d genes", n, len(m.Genes))
	}
	if len(m.ScalerMean) != len(m.Genes) {
		return errors.NewInvalidModelError("scaler_mean", "has %d values for %d genes", len(m.ScalerMean), len(m.Genes))
	}
	if len(m.ScalerScale) != len(m.Genes) {
		return errors.NewInvalidModelError("scaler_scale", "has %d values for %d genes", len(m.ScalerScale), len(m.Genes))
	}

	for j, g := range m.Genes {
		if mu := m.ScalerMean[j]; math.IsNaN(mu) || math.IsInf(mu, 0) {
			return errors.NewInvalidModelError("scaler_mean", "non-finite mean for gene %q", g)
		}
		if sd := m.ScalerScale[j]; !(sd > 0) || math.IsInf(sd, 0) {
			return errors.NewInvalidModelError("scaler_scale", "scale for gene %q must be positive and finite, got %v", g, sd)
		}
	}

	for k, row := range m.Coef {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewInvalidModelError("coef", "non-finite weight at row %d, gene %q", k, m.Genes[j])
			}
		}
		if math.IsNaN(m.Intercept[k]) || math.IsInf(m.Intercept[k], 0) {
			return errors.NewInvalidModelError("intercept", "non-finite value at row %d", k)
		}
	}
	return nil
}

// Clone はディープコピーを返す
func (m *Model) Clone() *Model {
	c := &Model{
		Genes:       append([]string(nil), m.Genes...),
		Classes:     append([]string(nil), m.Classes...),
		Coef:        make([][]float64, len(m.Coef)),
		Intercept:   append([]float64(nil), m.Intercept...),
		ScalerMean:  append([]float64(nil), m.ScalerMean...),
		ScalerScale: append([]float64(nil), m.ScalerScale...),
		Description: m.Description,
		Version:     m.Version,
	}
	for i, row := range m.Coef {
		c.Coef[i] = append([]float64(nil), row...)
	}
	return c
}

// Save はモデルを JSON で保存する。パスが ".gz" で終わる場合は gzip 圧縮する。
func (m *Model) Save(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return model.SaveJSON(path, m)
}

// Write はモデルを w に書き出す
func (m *Model) Write(w io.Writer, compress bool) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return model.WriteJSON(w, m, compress)
}

// Load はファイルからモデルを読み込み、検証する
func Load(path string) (*Model, error) {
	var m Model
	if err := model.LoadJSON(path, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(err, "model %s", path)
	}
	return &m, nil
}

// Read は r からモデルを読み込み、検証する
func Read(r io.Reader) (*Model, error) {
	var m Model
	if err := model.ReadJSON(r, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
