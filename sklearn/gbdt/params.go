package gbdt

import (
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Objective and evaluation metric names.
const (
	ObjectiveBinaryLogistic = "binary:logistic"

	EvalLogLoss = "logloss"
	EvalError   = "error"
)

// TrainingParams contains all training hyperparameters.
// The same params are used for every cross-validation fold and the final fit.
type TrainingParams struct {
	// Boosting
	NumIterations int     `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth      int     `json:"max_depth" yaml:"max_depth"`
	LearningRate  float64 `json:"learning_rate" yaml:"learning_rate"`

	// Sampling (per tree)
	Subsample       float64 `json:"subsample" yaml:"subsample"`
	ColsampleBytree float64 `json:"colsample_bytree" yaml:"colsample_bytree"`

	// Regularization
	Lambda         float64 `json:"reg_lambda" yaml:"reg_lambda"`
	Gamma          float64 `json:"gamma" yaml:"gamma"`
	MinChildWeight float64 `json:"min_child_weight" yaml:"min_child_weight"`

	// Objective
	Objective  string `json:"objective" yaml:"objective"`
	EvalMetric string `json:"eval_metric" yaml:"eval_metric"`

	Seed uint64 `json:"random_state" yaml:"random_state"`

	// LogEvery controls how often the training loss is logged at debug level (0 disables).
	LogEvery int `json:"log_every" yaml:"log_every"`
}

// DefaultParams returns the fixed hyperparameters of the heart-disease classifier.
func DefaultParams() TrainingParams {
	return TrainingParams{
		NumIterations:   200,
		MaxDepth:        4,
		LearningRate:    0.05,
		Subsample:       0.8,
		ColsampleBytree: 0.8,
		Lambda:          1.0,
		Gamma:           0,
		MinChildWeight:  1.0,
		Objective:       ObjectiveBinaryLogistic,
		EvalMetric:      EvalLogLoss,
		Seed:            42,
		LogEvery:        50,
	}
}

// Validate checks that every parameter is in range.
func (p TrainingParams) Validate() error {
	switch {
	case p.NumIterations < 1:
		return errors.NewValidationError("n_estimators", "must be at least 1", p.NumIterations)
	case p.MaxDepth < 1:
		return errors.NewValidationError("max_depth", "must be at least 1", p.MaxDepth)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return errors.NewValidationError("learning_rate", "must be in (0, 1]", p.LearningRate)
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	case p.ColsampleBytree <= 0 || p.ColsampleBytree > 1:
		return errors.NewValidationError("colsample_bytree", "must be in (0, 1]", p.ColsampleBytree)
	case p.Lambda < 0:
		return errors.NewValidationError("reg_lambda", "must be non-negative", p.Lambda)
	case p.Gamma < 0:
		return errors.NewValidationError("gamma", "must be non-negative", p.Gamma)
	case p.MinChildWeight < 0:
		return errors.NewValidationError("min_child_weight", "must be non-negative", p.MinChildWeight)
	case p.Objective != ObjectiveBinaryLogistic:
		return errors.NewValidationError("objective", "only binary:logistic is supported", p.Objective)
	case p.EvalMetric != EvalLogLoss && p.EvalMetric != EvalError:
		return errors.NewValidationError("eval_metric", "must be logloss or error", p.EvalMetric)
	}
	return nil
}
