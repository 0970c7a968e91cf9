package gbdt

import (
	"context"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/metrics"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

var (
	_ model.Classifier      = (*GBDTClassifier)(nil)
	_ model.ParameterGetter = (*GBDTClassifier)(nil)
)

// GBDTClassifier is a gradient-boosted binary classifier with a scikit-learn style API.
type GBDTClassifier struct {
	state *model.StateManager

	// Model is set after Fit or when wrapping a loaded model.
	Model *Model

	Params       TrainingParams
	FeatureNames []string
}

// NewGBDTClassifier creates a classifier with DefaultParams.
func NewGBDTClassifier() *GBDTClassifier {
	return &GBDTClassifier{
		state:  model.NewStateManager(),
		Params: DefaultParams(),
	}
}

// FromModel wraps an already trained model, e.g. one loaded from an artifact.
func FromModel(m *Model) *GBDTClassifier {
	c := &GBDTClassifier{
		state:        model.NewStateManager(),
		Model:        m,
		Params:       m.Params,
		FeatureNames: m.FeatureNames,
	}
	c.state.SetDimensions(m.NumFeatures, 0)
	c.state.SetFitted()
	return c
}

// WithParams replaces all hyperparameters
func (c *GBDTClassifier) WithParams(p TrainingParams) *GBDTClassifier {
	c.Params = p
	return c
}

// WithNumIterations sets the number of boosting rounds
func (c *GBDTClassifier) WithNumIterations(n int) *GBDTClassifier {
	c.Params.NumIterations = n
	return c
}

// WithMaxDepth sets the maximum depth
func (c *GBDTClassifier) WithMaxDepth(d int) *GBDTClassifier {
	c.Params.MaxDepth = d
	return c
}

// WithLearningRate sets the learning rate
func (c *GBDTClassifier) WithLearningRate(lr float64) *GBDTClassifier {
	c.Params.LearningRate = lr
	return c
}

// WithRandomState sets the random seed
func (c *GBDTClassifier) WithRandomState(seed uint64) *GBDTClassifier {
	c.Params.Seed = seed
	return c
}

// WithFeatureNames sets the column names recorded in the trained model
func (c *GBDTClassifier) WithFeatureNames(names []string) *GBDTClassifier {
	c.FeatureNames = append([]string(nil), names...)
	return c
}

// IsFitted reports whether Fit has completed.
func (c *GBDTClassifier) IsFitted() bool {
	return c.state.IsFitted()
}

// Fit trains the classifier.
func (c *GBDTClassifier) Fit(X, y mat.Matrix) error {
	return c.FitContext(context.Background(), X, y)
}

// FitContext trains the classifier, aborting between iterations if ctx is done.
func (c *GBDTClassifier) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GBDTClassifier.Fit")

	rows, cols := X.Dims()
	if c.FeatureNames != nil && len(c.FeatureNames) != cols {
		return errors.NewDimensionError("GBDTClassifier.Fit", len(c.FeatureNames), cols, 1)
	}

	c.state.Reset()
	trainer := NewTrainer(c.Params)
	if err := trainer.FitContext(ctx, X, y); err != nil {
		return errors.Wrap(err, "training failed")
	}

	m := trainer.GetModel()
	m.FeatureNames = c.featureNames(cols)
	c.Model = m
	c.state.SetDimensions(cols, rows)
	c.state.SetFitted()

	log.GetLoggerWithName("gbdt.classifier").Debug("Training completed",
		log.ModelNameKey, "GBDTClassifier",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"trees", len(m.Trees),
	)
	return nil
}

func (c *GBDTClassifier) featureNames(cols int) []string {
	if c.FeatureNames != nil {
		return append([]string(nil), c.FeatureNames...)
	}
	names := make([]string, cols)
	for i := range names {
		names[i] = "f" + strconv.Itoa(i)
	}
	return names
}

// PredictProba returns an n×2 matrix [P(y=0), P(y=1)].
func (c *GBDTClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := c.state.RequireFitted("GBDTClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	out, err := c.Model.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Predict returns hard labels using the 0.5 threshold.
func (c *GBDTClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := c.state.RequireFitted("GBDTClassifier", "Predict"); err != nil {
		return nil, err
	}
	out, err := c.Model.Predict(X)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DecisionFunction returns the raw log-odds score for each row.
func (c *GBDTClassifier) DecisionFunction(X mat.Matrix) (*mat.VecDense, error) {
	if err := c.state.RequireFitted("GBDTClassifier", "DecisionFunction"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	out := mat.NewVecDense(rows, nil)
	features := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(features, i, X)
		raw, err := c.Model.RawScore(features)
		if err != nil {
			return nil, err
		}
		out.SetVec(i, raw)
	}
	return out, nil
}

// Score returns the mean accuracy on the given data.
func (c *GBDTClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	yv, pv := mat.Col(nil, 0, y), mat.Col(nil, 0, pred)
	return metrics.Accuracy(mat.NewVecDense(len(yv), yv), mat.NewVecDense(len(pv), pv))
}

// Classes returns the class labels.
func (c *GBDTClassifier) Classes() []int {
	return []int{0, 1}
}

// FeatureImportances returns normalized total-gain importance per feature.
func (c *GBDTClassifier) FeatureImportances() []float64 {
	if !c.IsFitted() || c.Model == nil {
		return nil
	}
	return append([]float64(nil), c.Model.FeatureImportance...)
}

// GetParams returns the hyperparameters keyed by their conventional names.
func (c *GBDTClassifier) GetParams() map[string]interface{} {
	p := c.Params
	return map[string]interface{}{
		"n_estimators":     p.NumIterations,
		"max_depth":        p.MaxDepth,
		"learning_rate":    p.LearningRate,
		"subsample":        p.Subsample,
		"colsample_bytree": p.ColsampleBytree,
		"reg_lambda":       p.Lambda,
		"gamma":            p.Gamma,
		"min_child_weight": p.MinChildWeight,
		"objective":        p.Objective,
		"eval_metric":      p.EvalMetric,
		"random_state":     p.Seed,
	}
}
