package model

import (
	"gonum.org/v1/gonum/mat"
)

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// LabelFitter は文字列ラベルで学習する分類器のインターフェース
type LabelFitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X mat.Matrix, y []string) error
}

// IncrementalLearner はミニバッチでの逐次学習をサポートするモデルのインターフェース
type IncrementalLearner interface {
	// PartialFit は与えられたサンプルで1エポックのSGDを実行する。
	// classes は最初の呼び出し時のみ必須。
	PartialFit(X mat.Matrix, y []string, classes []string) error
}

// Classifier は線形分類器の推論インターフェース
type Classifier interface {
	// DecisionFunction は各クラスの決定値 (cells × classes) を返す
	DecisionFunction(X mat.Matrix) (*mat.Dense, error)

	// PredictProba は各クラスの確率 (cells × classes) を返す
	PredictProba(X mat.Matrix) (*mat.Dense, error)

	// Predict は各セルの最尤クラスを返す
	Predict(X mat.Matrix) ([]string, error)

	// Score は y との一致率（accuracy）を返す
	Score(X mat.Matrix, y []string) (float64, error)

	// Classes は学習時に見たクラスをソート順で返す
	Classes() []string
}

// OnlineClassifier combines the training and inference sides of an SGD classifier.
type OnlineClassifier interface {
	LabelFitter
	IncrementalLearner
	Classifier
	ExportWeights() (*LinearWeights, error)
}
