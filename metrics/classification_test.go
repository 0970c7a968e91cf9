package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func vec(v ...float64) *mat.VecDense {
	return mat.NewVecDense(len(v), v)
}

func TestAUC(t *testing.T) {
	tests := []struct {
		name   string
		labels []float64
		scores []float64
		want   float64
	}{
		{"ranked perfectly", []float64{0, 0, 1, 1}, []float64{0.05, 0.2, 0.7, 0.95}, 1},
		{"ranked backwards", []float64{0, 0, 1, 1}, []float64{0.95, 0.7, 0.2, 0.05}, 0},
		{"one swapped pair", []float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
		{"all tied", []float64{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"single class", []float64{1, 1, 1}, []float64{0.2, 0.6, 0.9}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(vec(tt.labels...), vec(tt.scores...))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAUCSingleClassWarns(t *testing.T) {
	var warnings []error
	errors.SetZerologWarnFunc(func(w error) { warnings = append(warnings, w) })
	defer errors.SetZerologWarnFunc(nil)

	_, err := AUC(vec(0, 0), vec(0.3, 0.4))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	var uw *errors.UndefinedMetricWarning
	assert.True(t, errors.As(warnings[0], &uw))
}

func TestAUCInvalidInput(t *testing.T) {
	_, err := AUC(vec(0, 2, 1), vec(0.1, 0.5, 0.9))
	assert.Error(t, err, "labels must be 0/1")

	_, err = AUC(vec(0, 1), vec(0.5))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	_, err = AUC(nil, vec(0.5))
	assert.Error(t, err)
}

func TestAUCMatrix(t *testing.T) {
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
	proba := mat.NewDense(4, 2, []float64{
		0.9, 0.1,
		0.6, 0.4,
		0.65, 0.35,
		0.2, 0.8,
	})
	// the first column is used, so pass the positive-class column on its own
	got, err := AUCMatrix(y, proba.ColView(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, got, 1e-12)

	_, err = AUCMatrix(y, mat.NewDense(3, 1, nil))
	assert.Error(t, err)
	_, err = AUCMatrix(nil, y)
	assert.Error(t, err)
}

func TestBinaryLogLoss(t *testing.T) {
	got, err := BinaryLogLoss(vec(1, 0), vec(0.8, 0.4))
	require.NoError(t, err)
	assert.InDelta(t, -(math.Log(0.8)+math.Log(0.6))/2, got, 1e-12)

	// certain and wrong is clipped rather than infinite
	got, err = BinaryLogLoss(vec(1), vec(0))
	require.NoError(t, err)
	assert.False(t, math.IsInf(got, 0))
	assert.Greater(t, got, 30.0)

	_, err = BinaryLogLoss(vec(0.5), vec(0.5))
	assert.Error(t, err)
}

func TestAccuracy(t *testing.T) {
	acc, err := Accuracy(vec(1, 0, 1, 1, 0), vec(1, 0, 0, 1, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, acc, 1e-12)

	e, err := ClassificationError(vec(1, 0, 1, 1, 0), vec(1, 0, 0, 1, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.4, e, 1e-12)

	_, err = Accuracy(vec(1, 0), vec(1))
	assert.Error(t, err)
	_, err = Accuracy(mat.NewVecDense(1, nil), nil)
	assert.Error(t, err)
}

func TestPrecisionRecallF1(t *testing.T) {
	tests := []struct {
		name                  string
		yTrue, yPred          []float64
		precision, recall, f1 float64
	}{
		{
			name:      "Typical case",
			yTrue:     []float64{1, 1, 1, 0, 0, 0},
			yPred:     []float64{1, 1, 0, 1, 0, 0},
			precision: 2.0 / 3.0,
			recall:    2.0 / 3.0,
			f1:        2.0 / 3.0,
		},
		{
			name:      "No predicted positives",
			yTrue:     []float64{1, 0, 1, 0},
			yPred:     []float64{0, 0, 0, 0},
			precision: 0,
			recall:    0,
			f1:        0,
		},
		{
			name:      "No actual positives",
			yTrue:     []float64{0, 0, 0},
			yPred:     []float64{1, 0, 0},
			precision: 0,
			recall:    0,
			f1:        0,
		},
		{
			name:      "Perfect",
			yTrue:     []float64{1, 0, 1},
			yPred:     []float64{1, 0, 1},
			precision: 1,
			recall:    1,
			f1:        1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yTrue := mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			yPred := mat.NewVecDense(len(tt.yPred), tt.yPred)

			p, err := Precision(yTrue, yPred)
			require.NoError(t, err)
			r, err := Recall(yTrue, yPred)
			require.NoError(t, err)
			f, err := F1Score(yTrue, yPred)
			require.NoError(t, err)

			assert.InDelta(t, tt.precision, p, 1e-9)
			assert.InDelta(t, tt.recall, r, 1e-9)
			assert.InDelta(t, tt.f1, f, 1e-9)
		})
	}
}

func TestConfusion(t *testing.T) {
	yTrue := mat.NewVecDense(5, []float64{1, 1, 0, 0, 1})
	yPred := mat.NewVecDense(5, []float64{1, 0, 0, 1, 1})

	c, err := Confusion(yTrue, yPred)
	require.NoError(t, err)
	assert.Equal(t, ConfusionCounts{TP: 2, FP: 1, TN: 1, FN: 1}, c)

	_, err = Confusion(yTrue, mat.NewVecDense(5, []float64{1, 2, 0, 0, 1}))
	assert.Error(t, err)
}

func TestHasBothClasses(t *testing.T) {
	assert.True(t, HasBothClasses(mat.NewVecDense(3, []float64{0, 1, 0})))
	assert.False(t, HasBothClasses(mat.NewVecDense(3, []float64{1, 1, 1})))
	assert.False(t, HasBothClasses(mat.NewVecDense(2, []float64{0, 0})))
}

func TestBrierScore(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{0, 0, 1, 1})
	yProb := mat.NewVecDense(4, []float64{0.1, 0.2, 0.8, 0.9})

	got, err := BrierScore(yTrue, yProb)
	require.NoError(t, err)
	assert.InDelta(t, (0.01+0.04+0.04+0.01)/4, got, 1e-12)

	_, err = BrierScore(yTrue, mat.NewVecDense(3, []float64{0, 0, 0}))
	assert.Error(t, err)
}
