package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func TestMedianImputer(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(5, 2, []float64{
		1, 10,
		nan, 20,
		3, nan,
		4, 40,
		100, 30,
	})

	imp := NewMedianImputer()
	assert.Equal(t, "MedianImputer()", imp.String())

	out, err := imp.FitTransform(X)
	require.NoError(t, err)

	// column 0: median(1,3,4,100) = 3.5; column 1: median(10,20,30,40) = 25
	assert.Equal(t, []float64{3.5, 25}, imp.Medians)
	assert.Equal(t, 3.5, out.At(1, 0))
	assert.Equal(t, 25.0, out.At(2, 1))
	assert.Equal(t, 100.0, out.At(4, 0))

	// input is left untouched
	assert.True(t, math.IsNaN(X.At(1, 0)))
}

func TestMedianImputerOddCount(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{5, 1, 3})
	imp := NewMedianImputer()
	require.NoError(t, imp.Fit(X))
	assert.Equal(t, 3.0, imp.Medians[0])
}

func TestMedianImputerErrors(t *testing.T) {
	imp := NewMedianImputer()

	_, err := imp.Transform(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	err = imp.Fit(mat.NewDense(2, 1, []float64{math.NaN(), math.NaN()}))
	assert.Error(t, err)

	require.NoError(t, imp.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = imp.Transform(mat.NewDense(1, 3, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}
