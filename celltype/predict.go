package celltype

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/preprocessing"
	"github.com/YuminosukeSato/celltypist/sklearn/linear_model"
)

// Standardize は Z = (X − mean)/scale を計算し、上限 maxValue でクリップする。
// 下限はクリップしない。scale に 0 以下や NaN があるとモデル不正としてエラー。
func Standardize(X mat.Matrix, mean, scale []float64, maxValue float64) (*mat.Dense, error) {
	_, c := X.Dims()
	if len(mean) != c {
		return nil, errors.NewDimensionError("Standardize", len(mean), c, 1)
	}
	if len(scale) != c {
		return nil, errors.NewInvalidModelError("scaler_scale", "has %d values for %d genes", len(scale), c)
	}
	for j, s := range scale {
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, errors.NewInvalidModelError("scaler_scale", "scale of feature %d is %v, must be positive", j, s)
		}
	}

	scaler := preprocessing.NewStandardScalerDefault().WithMaxValue(maxValue)
	scaler.Mean = mean
	scaler.Scale = scale
	scaler.NFeatures = c
	scaler.SetFitted()
	return scaler.TransformDense(X)
}

// Standardize はビューの平均と標準偏差で X（揃えた列）を標準化する
func (v *ModelView) Standardize(X mat.Matrix) (*mat.Dense, error) {
	return Standardize(X, v.Mean, v.Scale, preprocessing.DefaultMaxValue)
}

// Prediction は1回の分類結果。行は入力の細胞順。
type Prediction struct {
	Classes []string
	// Scores は決定値（2クラスモデルでは1列）
	Scores *mat.Dense
	// Proba は各クラスの確率（細胞 × クラス、行和は 1）
	Proba  *mat.Dense
	Index  []int
	Labels []string
}

// Classify は標準化済みの Z から決定値・確率・ラベルを計算する。
// 2クラスモデルは p(classes[1]) = sigmoid(s)、多クラスは行ごとの softmax。
// 同点は小さいクラス番号が優先される。
func (v *ModelView) Classify(Z mat.Matrix) (*Prediction, error) {
	_, c := Z.Dims()
	if _, f := v.Coef.Dims(); c != f {
		return nil, errors.NewDimensionError("ModelView.Classify", f, c, 1)
	}

	scores := linear_model.DecisionScores(Z, v.Coef, v.Intercept)
	proba := linear_model.ProbaFromScores(scores)
	r, _ := proba.Dims()
	if err := errors.CheckMatrix("ModelView.Classify", proba, r, len(v.Classes), 0); err != nil {
		return nil, err
	}

	idx := linear_model.ArgMaxRows(proba)
	labels := make([]string, len(idx))
	for i, k := range idx {
		labels[i] = v.Classes[k]
	}
	return &Prediction{
		Classes: append([]string(nil), v.Classes...),
		Scores:  scores,
		Proba:   proba,
		Index:   idx,
		Labels:  labels,
	}, nil
}

// Predict は入力行列 X（細胞 × 入力遺伝子）に対して選択・標準化・分類をまとめて行う
func (v *ModelView) Predict(X mat.Matrix) (*Prediction, error) {
	selected, err := v.Select(X)
	if err != nil {
		return nil, err
	}
	Z, err := v.Standardize(selected)
	if err != nil {
		return nil, err
	}
	return v.Classify(Z)
}
