package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMissingFieldError(t *testing.T) {
	err := NewMissingFieldError("age")

	var vErr *ValidationError
	require.True(t, As(err, &vErr))
	assert.Equal(t, "age", vErr.Field)
	assert.Equal(t, "Missing required field: age", vErr.Message())
	assert.Contains(t, err.Error(), "'age'")

	// スタックトレースの存在確認
	formatted := fmt.Sprintf("%+v", err)
	assert.True(t, strings.Contains(formatted, "errors_test.go"), "expected stack trace to contain test file name")
}

func TestValidationError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{"missing", &ValidationError{Field: "sex", Reason: ReasonMissing}, "Missing required field: sex"},
		{"type", &ValidationError{Field: "age", Reason: "must be a number", Value: "old"}, "Invalid field age: must be a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Message())
		})
	}
}

func TestModelUnavailable_Is(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unavailable", NewModelUnavailableError("")},
		{"artifact not found", Wrap(ErrArtifactNotFound, "load model.bin")},
		{"artifact corrupted", NewArtifactError("model.bin", "checksum mismatch", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Is(tt.err, ErrModelUnavailable))
		})
	}

	assert.True(t, Is(Wrap(ErrArtifactNotFound, "x"), ErrArtifactNotFound))
	assert.False(t, Is(NewArtifactError("m", "bad magic", nil), ErrArtifactNotFound))
	assert.False(t, Is(NewPredictionError("Predict", nil), ErrModelUnavailable))
}

func TestNewPredictionError(t *testing.T) {
	cause := NewDimensionError("Model.Predict", 4, 3, 1)
	err := NewPredictionError("Service.Predict", cause)

	var pErr *PredictionError
	require.True(t, As(err, &pErr))
	assert.Equal(t, "Prediction failed", pErr.Message())

	// 原因のDimensionErrorまで辿れること
	var dErr *DimensionError
	require.True(t, As(err, &dErr))
	assert.Equal(t, 4, dErr.Expected)
	assert.Equal(t, 3, dErr.Got)
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 4, 5, 1)
	assert.Equal(t, "heartrisk: Predict: dimension mismatch on axis 1 (features). Expected 4, got 5", err.Error())

	err = NewDimensionError("Fit", 10, 9, 0)
	assert.Contains(t, err.Error(), "(rows)")
}

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"with original error", NewModelError("Fit", "invalid input", fmt.Errorf("test error")), "heartrisk: Fit: invalid input: test error"},
		{"without original error", NewModelError("Predict", "not fitted", nil), "heartrisk: Predict: not fitted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			var modelErr *ModelError
			assert.True(t, As(tt.err, &modelErr))
		})
	}
}

func TestWarn_UsesZerologFunc(t *testing.T) {
	var got []error
	SetZerologWarnFunc(func(w error) { got = append(got, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewUndefinedMetricWarning("precision", "no predicted positives", 0))

	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error(), "'precision' is ill-defined")
}

func TestWarn_FallsBackToHandler(t *testing.T) {
	var got error
	SetWarningHandler(func(w error) { got = w })
	defer SetWarningHandler(nil)

	Warn(NewFoldFailedWarning(3, New("boom")))

	require.Error(t, got)
	assert.Contains(t, got.Error(), "fold 3 failed")
}

func TestCheckNumericalStability(t *testing.T) {
	assert.NoError(t, CheckNumericalStability("shap", []float64{0.1, -2, 3}, 0))

	err := CheckNumericalStability("shap", []float64{0.1, nan(), 3}, 7)
	var nErr *NumericalInstabilityError
	require.True(t, As(err, &nErr))
	assert.Equal(t, 7, nErr.Iteration)
	assert.Len(t, nErr.Values, 1)
}

func TestSafeDivide(t *testing.T) {
	assert.Equal(t, 0.0, SafeDivide(3, 0))
	assert.Equal(t, 1.5, SafeDivide(3, 2))
}

func nan() float64 {
	var zero float64
	return zero / zero
}
