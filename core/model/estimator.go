package model

import "gonum.org/v1/gonum/mat"

// Fitter は教師ありデータ (X, y) から学習するモデルのインターフェース
type Fitter interface {
	Fit(X, y mat.Matrix) error
}

// Predictor は行ごとの予測を返すモデルのインターフェース
type Predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator は学習状態を問い合わせられるFitter
type Estimator interface {
	Fitter
	// IsFitted は学習済みならtrueを返す
	IsFitted() bool
}

// Transformer はラベルを使わずに学習する前処理のインターフェース
//
// Fitで統計量（中央値など）を学習し、Transformは入力を変更せずに
// 変換後の新しい行列を返す。
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
