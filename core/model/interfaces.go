package model

import (
	"gonum.org/v1/gonum/mat"
)

// Scorer は(X, y)に対する評価値を返すモデル
type Scorer interface {
	// Score は分類器では正解率を返す
	Score(X, y mat.Matrix) (float64, error)
}

// Classifier は確率を出力する二値分類器の契約
//
// PredictProba は n×2 の行列 [P(y=0), P(y=1)] を返し、
// Predict は P(y=1) >= 0.5 を陽性とするラベルを返す。
type Classifier interface {
	Estimator
	Predictor
	Scorer
	PredictProba(X mat.Matrix) (mat.Matrix, error)
	// Classes は学習時に現れたクラスを昇順で返す
	Classes() []int
}

// ParameterGetter はハイパーパラメータをキー・値で公開するモデル
type ParameterGetter interface {
	GetParams() map[string]interface{}
}
