// Package preprocessing provides feature transformers applied before training.
package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

var _ model.Transformer = (*MedianImputer)(nil)

// MedianImputer は欠損値（NaN）を列ごとの中央値で置き換える変換器
//
// 中央値はNaNを除いた値から計算し、要素数が偶数の場合は
// 中央の2値の平均を用いる。
type MedianImputer struct {
	state *model.StateManager

	// Medians は各特徴量の中央値
	Medians []float64

	// NFeatures は特徴量の数
	NFeatures int
}

// NewMedianImputer は新しいMedianImputerを作成する
//
// 使用例:
//
//	imp := preprocessing.NewMedianImputer()
//	XFilled, err := imp.FitTransform(X)
func NewMedianImputer() *MedianImputer {
	return &MedianImputer{state: model.NewStateManager()}
}

// IsFitted は学習済みかどうかを返す
func (m *MedianImputer) IsFitted() bool {
	return m.state.IsFitted()
}

// Fit は訓練データから各列の中央値を計算する
//
// パラメータ:
//   - X: 訓練データ (n_samples × n_features の行列)
//
// 戻り値:
//   - error: データが空、または全ての値が欠損している列がある場合
func (m *MedianImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MedianImputer.Fit", "empty data", errors.ErrEmptyData)
	}

	medians := make([]float64, c)
	col := make([]float64, 0, r)
	for j := 0; j < c; j++ {
		col = col[:0]
		for i := 0; i < r; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		if len(col) == 0 {
			return errors.NewValueError("MedianImputer.Fit", fmt.Sprintf("column %d has no observed values", j))
		}
		medians[j] = median(col)
	}

	m.Medians = medians
	m.NFeatures = c
	m.state.SetDimensions(c, r)
	m.state.SetFitted()
	return nil
}

// Transform は欠損値を学習済みの中央値で埋めた新しい行列を返す
func (m *MedianImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted("MedianImputer", "Transform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if c != m.NFeatures {
		return nil, errors.NewDimensionError("MedianImputer.Transform", m.NFeatures, c, 1)
	}

	result := mat.DenseCopyOf(X)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(result.At(i, j)) {
				result.Set(i, j, m.Medians[j])
			}
		}
	}
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (m *MedianImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// String は変換器の文字列表現を返す
func (m *MedianImputer) String() string {
	if !m.IsFitted() {
		return "MedianImputer()"
	}
	return fmt.Sprintf("MedianImputer(n_features=%d)", m.NFeatures)
}

// median は値を並べ替えて中央値を返す（valuesは並べ替えられる）
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
