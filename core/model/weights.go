package model

import "github.com/YuminosukeSato/celltypist/pkg/errors"

// LinearWeights は線形分類器の重みを表す構造体（シリアライゼーション用）
type LinearWeights struct {
	// ModelType はモデルの種類（SGDClassifier等）
	ModelType string `json:"model_type"`

	// Version はモデルのバージョン（互換性チェック用）
	Version string `json:"version"`

	// Classes はクラスラベル（ソート順）
	Classes []string `json:"classes"`

	// Coef は重み係数 (行数 × 特徴量数)。二値分類では1行。
	Coef [][]float64 `json:"coef"`

	// Intercept は行ごとの切片
	Intercept []float64 `json:"intercept"`

	// Features は特徴量の名前（オプション）
	Features []string `json:"features,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// NFeatures は重み行列の列数を返す
func (w *LinearWeights) NFeatures() int {
	if len(w.Coef) == 0 {
		return 0
	}
	return len(w.Coef[0])
}

// Validate はLinearWeightsの妥当性を検証
func (w *LinearWeights) Validate() error {
	if w.ModelType == "" {
		return errors.NewInvalidModelError("model_type", "is required")
	}
	if !w.IsFitted {
		if len(w.Coef) > 0 {
			return errors.NewInvalidModelError("coef", "unfitted model should not have coefficients")
		}
		return nil
	}
	if len(w.Coef) == 0 {
		return errors.NewInvalidModelError("coef", "fitted model must have coefficients")
	}
	if len(w.Classes) < 2 {
		return errors.NewInvalidModelError("classes", "at least 2 classes are required, got %d", len(w.Classes))
	}
	wantRows := len(w.Classes)
	if wantRows == 2 {
		wantRows = 1
	}
	if len(w.Coef) != wantRows {
		return errors.NewInvalidModelError("coef", "expected %d rows for %d classes, got %d", wantRows, len(w.Classes), len(w.Coef))
	}
	if len(w.Intercept) != len(w.Coef) {
		return errors.NewInvalidModelError("intercept", "expected %d values, got %d", len(w.Coef), len(w.Intercept))
	}
	nFeatures := len(w.Coef[0])
	for i, row := range w.Coef {
		if len(row) != nFeatures {
			return errors.NewInvalidModelError("coef", "row %d has %d values, expected %d", i, len(row), nFeatures)
		}
	}
	if len(w.Features) > 0 && len(w.Features) != nFeatures {
		return errors.NewInvalidModelError("features", "expected %d names, got %d", nFeatures, len(w.Features))
	}
	return nil
}

// Clone はLinearWeightsのディープコピーを作成
func (w *LinearWeights) Clone() *LinearWeights {
	clone := &LinearWeights{
		ModelType:       w.ModelType,
		Version:         w.Version,
		IsFitted:        w.IsFitted,
		Classes:         append([]string(nil), w.Classes...),
		Intercept:       append([]float64(nil), w.Intercept...),
		Features:        append([]string(nil), w.Features...),
		Coef:            make([][]float64, len(w.Coef)),
		Hyperparameters: make(map[string]interface{}, len(w.Hyperparameters)),
	}

	for i, row := range w.Coef {
		clone.Coef[i] = append([]float64(nil), row...)
	}

	for k, v := range w.Hyperparameters {
		clone.Hyperparameters[k] = v
	}

	return clone
}
