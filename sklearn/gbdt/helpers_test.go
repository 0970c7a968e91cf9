package gbdt

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

var testFeatureNames = []string{"age", "sex", "trestbps", "fbs"}

// makeHeartData builds a reproducible dataset shaped like the clinical training table.
func makeHeartData(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	r := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 4, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		age := 30 + r.Float64()*45
		sex := float64(r.IntN(2))
		bp := 100 + r.Float64()*80
		fbs := 0.0
		if r.Float64() < 0.2 {
			fbs = 1
		}
		X.SetRow(i, []float64{age, sex, bp, fbs})

		logit := 0.08*(age-52) + 1.2*sex + 0.03*(bp-140) + 0.5*fbs - 0.3
		p := 1 / (1 + math.Exp(-logit))
		if r.Float64() < p {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func smallParams() TrainingParams {
	p := DefaultParams()
	p.NumIterations = 30
	p.MaxDepth = 3
	p.LearningRate = 0.1
	return p
}

func trainSmallModel(n int) (*Model, *mat.Dense, *mat.Dense, error) {
	X, y := makeHeartData(n, 7)
	clf := NewGBDTClassifier().WithParams(smallParams()).WithFeatureNames(testFeatureNames)
	if err := clf.Fit(X, y); err != nil {
		return nil, nil, nil, err
	}
	return clf.Model, X, y, nil
}
