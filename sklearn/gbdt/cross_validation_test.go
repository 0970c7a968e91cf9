package gbdt

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func assertPartition(t *testing.T, folds []CVFold, n int) {
	t.Helper()
	seen := make([]int, n)
	for i, fold := range folds {
		assert.Equal(t, n, len(fold.TrainIndices)+len(fold.TestIndices), "fold %d size", i)
		assert.IsIncreasing(t, fold.TestIndices)
		test := make(map[int]bool, len(fold.TestIndices))
		for _, idx := range fold.TestIndices {
			test[idx] = true
			seen[idx]++
		}
		for _, idx := range fold.TrainIndices {
			assert.False(t, test[idx], "fold %d: index %d in both train and test", i, idx)
		}
	}
	for idx, c := range seen {
		assert.Equal(t, 1, c, "index %d must be tested exactly once", idx)
	}
}

func TestKFold(t *testing.T) {
	n := 103
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)

	kf := NewKFold(5, true, 42)
	assert.Equal(t, 5, kf.GetNSplits())

	folds, err := kf.Split(X, y)
	require.NoError(t, err)
	require.Len(t, folds, 5)
	assertPartition(t, folds, n)
	for _, f := range folds {
		assert.InDelta(t, 20.6, float64(len(f.TestIndices)), 1)
	}
}

func TestStratifiedKFold(t *testing.T) {
	for _, tc := range []struct {
		name string
		n, k int
	}{
		{"even", 100, 5},
		{"uneven", 97, 5},
		{"ten folds", 61, 10},
		{"two folds", 9, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			X, y := makeHeartData(tc.n, 11)
			skf := NewStratifiedKFold(tc.k, true, 42)

			folds, err := skf.Split(X, y)
			require.NoError(t, err)
			require.Len(t, folds, tc.k)
			assertPartition(t, folds, tc.n)

			// per class, fold counts differ by at most one
			for _, label := range []float64{0, 1} {
				minC, maxC := tc.n, 0
				for _, f := range folds {
					c := 0
					for _, idx := range f.TestIndices {
						if y.At(idx, 0) == label {
							c++
						}
					}
					minC = min(minC, c)
					maxC = max(maxC, c)
				}
				assert.LessOrEqual(t, maxC-minC, 1, "class %v", label)
			}

			// fold sizes differ by at most one as well
			minS, maxS := tc.n, 0
			for _, f := range folds {
				minS = min(minS, len(f.TestIndices))
				maxS = max(maxS, len(f.TestIndices))
			}
			assert.LessOrEqual(t, maxS-minS, 1)
		})
	}
}

func TestStratifiedKFoldDeterministic(t *testing.T) {
	X, y := makeHeartData(80, 5)

	a, err := NewStratifiedKFold(5, true, 42).Split(X, y)
	require.NoError(t, err)
	b, err := NewStratifiedKFold(5, true, 42).Split(X, y)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := NewStratifiedKFold(5, true, 43).Split(X, y)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSplitterErrors(t *testing.T) {
	X := mat.NewDense(3, 1, nil)
	y := mat.NewDense(3, 1, nil)

	_, err := NewStratifiedKFold(1, false, 0).Split(X, y)
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "n_splits", ve.Field)

	_, err = NewStratifiedKFold(4, false, 0).Split(X, y)
	assert.Error(t, err)

	_, err = NewKFold(4, false, 0).Split(X, y)
	assert.Error(t, err)

	_, err = NewStratifiedKFold(2, false, 0).Split(X, mat.NewDense(2, 1, nil))
	assert.Error(t, err)
}

func TestCrossValidate(t *testing.T) {
	X, y := makeHeartData(150, 9)

	report, err := CrossValidate(context.Background(), smallParams(), X, y,
		NewStratifiedKFold(5, true, 42), CVOptions{Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, 5, report.NSplits)
	require.Len(t, report.Folds, 5)
	assert.Empty(t, report.FailedFolds)
	for i, f := range report.Folds {
		assert.Equal(t, i, f.Fold)
		assert.Equal(t, 30, f.TestSize)
		assert.True(t, f.AUCDefined)
		for _, v := range []float64{f.Accuracy, f.Precision, f.Recall, f.F1, f.AUC} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	assert.Equal(t, 5, report.Accuracy.N)
	assert.Greater(t, report.AUC.Mean, 0.5)
	assert.GreaterOrEqual(t, report.Accuracy.Std, 0.0)

	again, err := CrossValidate(context.Background(), smallParams(), X, y,
		NewStratifiedKFold(5, true, 42), CVOptions{Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, report.Accuracy, again.Accuracy, "worker count must not change results")

	assert.True(t, strings.Contains(report.String(), "accuracy"))
}

func TestCrossValidateSingleClassFold(t *testing.T) {
	// no positive rows, so every test fold holds a single class
	n := 20
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
	}

	p := smallParams()
	p.NumIterations = 3
	p.MinChildWeight = 0
	report, err := CrossValidate(context.Background(), p, X, y, NewStratifiedKFold(4, false, 0), CVOptions{})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3}, report.AUCExcludedFolds)
	assert.Equal(t, 0, report.AUC.N)
	assert.Equal(t, 4, report.Precision.N)
	assert.Contains(t, report.String(), "n/a")
}

func TestSummarizePopulationStd(t *testing.T) {
	s := summarize([]float64{1, 2, 3, 4})
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	// ddof = 0
	assert.InDelta(t, 1.118033988749895, s.Std, 1e-12)
	assert.Equal(t, MetricSummary{}, summarize(nil))
}
