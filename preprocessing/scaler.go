package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/celltypist/core/model"
	"github.com/YuminosukeSato/celltypist/core/parallel"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// DefaultMaxValue は標準化後の値の上限（celltypist の学習・予測で共通）
const DefaultMaxValue = 10.0

// 列ごとの統計計算を並列化する閾値（特徴量数）
const parallelColumnThreshold = 256

var _ model.Transformer = (*StandardScaler)(nil)

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを平均0、標準偏差1に変換し、必要なら上限でクリップする
type StandardScaler struct {
	model.BaseEstimator

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差（母分散ベース）
	Scale []float64

	// NFeatures は特徴量の数
	NFeatures int

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool

	// MaxValue は変換後の上限値。0 以下ならクリップしない。下限はクリップしない。
	MaxValue float64
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// パラメータ:
//   - withMean: 平均を引くかどうか (デフォルト: true)
//   - withStd: 標準偏差で割るかどうか (デフォルト: true)
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true).WithMaxValue(10)
//	XScaled, err := scaler.FitTransform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// WithMaxValue は変換後の上限値を設定する
func (s *StandardScaler) WithMaxValue(maxValue float64) *StandardScaler {
	s.MaxValue = maxValue
	return s
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する
//
// パラメータ:
//   - X: 訓練データ (n_samples × n_features の行列)
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "StandardScaler.Fit")
	}

	s.NFeatures = c
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)

	parallel.ParallelizeWithThreshold(c, parallelColumnThreshold, func(start, end int) {
		for j := start; j < end; j++ {
			// 平均を計算
			mean := 0.0
			if s.WithMean || s.WithStd {
				sum := 0.0
				for i := 0; i < r; i++ {
					sum += X.At(i, j)
				}
				mean = sum / float64(r)
			}
			if s.WithMean {
				s.Mean[j] = mean
			}

			// 標準偏差を計算
			s.Scale[j] = 1.0
			if s.WithStd {
				sumSquares := 0.0
				for i := 0; i < r; i++ {
					diff := X.At(i, j) - mean
					sumSquares += diff * diff
				}
				scale := math.Sqrt(sumSquares / float64(r))

				// 標準偏差が0に近い場合は1に設定（ゼロ除算を避ける）
				if scale >= 1e-8 {
					s.Scale[j] = scale
				}
			}
		}
	})

	s.SetFitted()
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	return s.TransformDense(X)
}

// TransformDense は Transform と同じだが *mat.Dense を返す
func (s *StandardScaler) TransformDense(X mat.Matrix) (*mat.Dense, error) {
	if err := s.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := result.RawRowView(i)
		for j := 0; j < c; j++ {
			v := (X.At(i, j) - s.Mean[j]) / s.Scale[j]
			if s.MaxValue > 0 && v > s.MaxValue {
				v = s.MaxValue
			}
			row[j] = v
		}
	}

	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
		"max_value": s.MaxValue,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures)
}
