package gbdt

import (
	"math"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// ObjectiveFunction defines the interface for boosting objectives.
// prediction is always the raw (log-odds) score.
type ObjectiveFunction interface {
	// CalculateGradient calculates the gradient for a single sample
	CalculateGradient(prediction, target float64) float64

	// CalculateHessian calculates the hessian for a single sample
	CalculateHessian(prediction, target float64) float64

	// CalculateLoss calculates the loss for a single sample
	CalculateLoss(prediction, target float64) float64

	// GetInitScore returns the initial raw score for this objective
	GetInitScore(targets []float64) float64

	// Transform maps a raw score to the output scale
	Transform(raw float64) float64

	// Name returns the name of the objective
	Name() string
}

// minHessian keeps hessians strictly positive when p saturates.
const minHessian = 1e-16

// BinaryLogisticObjective implements binary cross-entropy on log-odds.
type BinaryLogisticObjective struct{}

func NewBinaryLogisticObjective() *BinaryLogisticObjective {
	return &BinaryLogisticObjective{}
}

func (o *BinaryLogisticObjective) CalculateGradient(prediction, target float64) float64 {
	return sigmoid(prediction) - target
}

func (o *BinaryLogisticObjective) CalculateHessian(prediction, target float64) float64 {
	p := sigmoid(prediction)
	return math.Max(p*(1-p), minHessian)
}

func (o *BinaryLogisticObjective) CalculateLoss(prediction, target float64) float64 {
	p := errors.ClipProbability(sigmoid(prediction))
	return -(target*math.Log(p) + (1-target)*math.Log(1-p))
}

// GetInitScore returns logit(mean(y)), clipped away from 0 and 1.
func (o *BinaryLogisticObjective) GetInitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, t := range targets {
		sum += t
	}
	p := errors.ClipProbability(sum / float64(len(targets)))
	return math.Log(p / (1 - p))
}

func (o *BinaryLogisticObjective) Transform(raw float64) float64 {
	return sigmoid(raw)
}

func (o *BinaryLogisticObjective) Name() string {
	return ObjectiveBinaryLogistic
}

// CreateObjectiveFunction returns the objective for the given name.
func CreateObjectiveFunction(name string) (ObjectiveFunction, error) {
	switch name {
	case ObjectiveBinaryLogistic, "binary", "":
		return NewBinaryLogisticObjective(), nil
	default:
		return nil, errors.NewValidationError("objective", "unsupported objective", name)
	}
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1.0 / (1.0 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1.0 + e)
}
