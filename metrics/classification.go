package metrics

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// ConfusionCounts は二値分類の混同行列の各セルの件数を保持する
type ConfusionCounts struct {
	TP, FP, TN, FN int
}

// Confusion は正解ラベルと予測ラベル（いずれも0/1）から混同行列を数える
func Confusion(yTrue, yPred *mat.VecDense) (ConfusionCounts, error) {
	var c ConfusionCounts
	if err := checkPair("Confusion", yTrue, yPred); err != nil {
		return c, err
	}
	if err := checkBinary("Confusion", yTrue); err != nil {
		return c, err
	}
	if err := checkBinary("Confusion", yPred); err != nil {
		return c, err
	}

	for i := 0; i < yTrue.Len(); i++ {
		actual, pred := yTrue.AtVec(i) == 1, yPred.AtVec(i) == 1
		switch {
		case actual && pred:
			c.TP++
		case !actual && pred:
			c.FP++
		case !actual && !pred:
			c.TN++
		default:
			c.FN++
		}
	}
	return c, nil
}

// Precision は陽性予測のうち正しかった割合 TP/(TP+FP)。
// 陽性予測が一件もない場合は0を返し、UndefinedMetricWarningを発行する
func (c ConfusionCounts) Precision() float64 {
	if c.TP+c.FP == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted positive samples", 0))
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FP)
}

// Recall は実際の陽性のうち検出できた割合 TP/(TP+FN)。
// 陽性サンプルが存在しない場合は0
func (c ConfusionCounts) Recall() float64 {
	if c.TP+c.FN == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true positive samples", 0))
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FN)
}

// F1 は適合率と再現率の調和平均。両方0なら0
func (c ConfusionCounts) F1() float64 {
	denom := 2*c.TP + c.FP + c.FN
	if denom == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("f1", "no positive samples in truth or prediction", 0))
		return 0
	}
	return 2 * float64(c.TP) / float64(denom)
}

// Accuracy は正解率を計算する。多クラスラベルにも使える
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	if err := checkPair("Accuracy", yTrue, yPred); err != nil {
		return 0, err
	}
	n := yTrue.Len()
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率（1 - Accuracy）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// Precision は二値ラベルの適合率を計算する（ゼロ除算時は0）
func Precision(yTrue, yPred *mat.VecDense) (float64, error) {
	c, err := Confusion(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return c.Precision(), nil
}

// Recall は二値ラベルの再現率を計算する（ゼロ除算時は0）
func Recall(yTrue, yPred *mat.VecDense) (float64, error) {
	c, err := Confusion(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return c.Recall(), nil
}

// F1Score は二値ラベルのF1スコアを計算する（ゼロ除算時は0）
func F1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	c, err := Confusion(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return c.F1(), nil
}

// AUC はROC曲線下面積を計算する。
// yScore は陽性クラスの確率（またはスコア）。同点スコアは対角線で補間される。
// 正解ラベルが単一クラスの場合AUCは定義できないため0.5を返す
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	if err := checkPair("AUC", yTrue, yScore); err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}
	if !HasBothClasses(yTrue) {
		errors.Warn(errors.NewUndefinedMetricWarning("auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	n := yTrue.Len()
	scores := make([]float64, n)
	classes := make([]bool, n)
	for i := 0; i < n; i++ {
		scores[i] = yScore.AtVec(i)
		classes[i] = yTrue.AtVec(i) == 1
	}

	// stat.ROC は昇順にソートされたスコアを要求する
	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// AUCMatrix は行列形式の入力（先頭列を使用）に対してAUCを計算する
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	if yTrue == nil || yScore == nil {
		return 0, errors.NewValueError("AUCMatrix", "nil matrix")
	}
	rTrue, cTrue := yTrue.Dims()
	rScore, cScore := yScore.Dims()
	if rTrue == 0 || cTrue == 0 || cScore == 0 {
		return 0, errors.NewValueError("AUCMatrix", "empty matrix")
	}
	if rTrue != rScore {
		return 0, errors.NewDimensionError("AUCMatrix", rTrue, rScore, 0)
	}
	return AUC(
		mat.NewVecDense(rTrue, mat.Col(nil, 0, yTrue)),
		mat.NewVecDense(rScore, mat.Col(nil, 0, yScore)),
	)
}

// BinaryLogLoss は二値交差エントロピーを計算する。確率は[1e-15, 1-1e-15]にクリップされる
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	if err := checkPair("BinaryLogLoss", yTrue, yProb); err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	n := yTrue.Len()
	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipProbability(yProb.AtVec(i))
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// HasBothClasses は0と1の両方のラベルが含まれるかを判定する
func HasBothClasses(y *mat.VecDense) bool {
	var pos, neg bool
	for i := 0; i < y.Len(); i++ {
		if y.AtVec(i) == 1 {
			pos = true
		} else {
			neg = true
		}
		if pos && neg {
			return true
		}
	}
	return false
}

func checkPair(op string, a, b *mat.VecDense) error {
	if a == nil || b == nil || a.Len() == 0 || b.Len() == 0 {
		return errors.NewValueError(op, "empty vector")
	}
	if a.Len() != b.Len() {
		return errors.NewDimensionError(op, a.Len(), b.Len(), 0)
	}
	return nil
}

func checkBinary(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be binary (0 or 1)")
		}
	}
	return nil
}
