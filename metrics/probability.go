package metrics

import (
	"gonum.org/v1/gonum/mat"
)

// BrierScore は予測確率と二値ラベルの平均二乗誤差を計算する
func BrierScore(yTrue, yProb *mat.VecDense) (float64, error) {
	if err := checkPair("BrierScore", yTrue, yProb); err != nil {
		return 0, err
	}
	if err := checkBinary("BrierScore", yTrue); err != nil {
		return 0, err
	}

	// Brier = (1/n) * Σ(p - y)²
	var diff mat.VecDense
	diff.SubVec(yProb, yTrue)
	return mat.Dot(&diff, &diff) / float64(yTrue.Len()), nil
}
