// Package inference serves heart-disease risk predictions and their additive
// feature attributions from a hot-swappable model.
package inference

import (
	"context"
	"time"

	"github.com/YuminosukeSato/heartrisk/internal/telemetry"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/sklearn/gbdt"
)

// Risk tiers.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

// Endpoint names used for metrics.
const (
	EndpointPredict                = "predict"
	EndpointPredictWithAttribution = "predict_with_attribution"
)

// RiskLevel maps a probability to its tier: below 0.3 is low, below 0.6 is
// moderate, anything else is high.
func RiskLevel(p float64) string {
	switch {
	case p < 0.3:
		return RiskLow
	case p < 0.6:
		return RiskModerate
	default:
		return RiskHigh
	}
}

// Result is a point prediction.
type Result struct {
	Prediction    int      `json:"prediction"`
	Probability   float64  `json:"probability"`
	RiskLevel     string   `json:"risk_level"`
	RiskScore     float64  `json:"risk_score"`
	IgnoredFields []string `json:"ignored_fields,omitempty"`
}

// AttributedResult is a prediction plus the per-feature contributions to its
// log-odds. When attribution fails SHAPValues is empty and AttributionError
// says why.
type AttributedResult struct {
	Result
	SHAPValues       map[string]float64 `json:"shap_values"`
	BaseValue        *float64           `json:"base_value,omitempty"`
	AttributionError string             `json:"attribution_error,omitempty"`
}

// Health is the liveness report.
type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// ModelInfo describes the model being served.
type ModelInfo struct {
	Path         string              `json:"path"`
	FeatureNames []string            `json:"feature_names"`
	Trees        int                 `json:"trees"`
	Params       gbdt.TrainingParams `json:"params"`
	BaseValue    float64             `json:"base_value"`
	Importance   map[string]float64  `json:"feature_importance"`
	Checksum     string              `json:"checksum,omitempty"`
	TrainedAt    *time.Time          `json:"trained_at,omitempty"`
	LoadedAt     time.Time           `json:"loaded_at"`
}

// Service answers prediction requests against the model held by a ModelHandle.
// It is safe for concurrent use.
type Service struct {
	handle    *ModelHandle
	modelPath string
	metrics   *telemetry.Metrics
	logger    log.Logger
}

// NewService creates a service over handle. modelPath is the artifact Reload
// reads; metrics may be nil.
func NewService(handle *ModelHandle, modelPath string, metrics *telemetry.Metrics) *Service {
	if handle == nil {
		handle = &ModelHandle{}
	}
	s := &Service{
		handle:    handle,
		modelPath: modelPath,
		metrics:   metrics,
		logger:    log.GetLoggerWithName("inference"),
	}
	metrics.SetModelLoaded(handle.Snapshot() != nil)
	return s
}

// Health always succeeds.
func (s *Service) Health() Health {
	return Health{Status: "healthy", ModelLoaded: s.handle.Snapshot() != nil}
}

// Reload loads the artifact from disk and swaps it in. On failure the
// previous model stays in service.
func (s *Service) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l, err := s.handle.Load(s.modelPath)
	if err != nil {
		s.metrics.ObserveReload(telemetry.ReloadFailed)
		s.logger.Error("Model reload failed", err, log.ArtifactPathKey, s.modelPath)
		return err
	}
	s.metrics.ObserveReload(telemetry.ReloadSucceeded)
	s.metrics.SetModelLoaded(true)

	attrs := []any{
		log.OperationKey, log.OperationLoad,
		log.ArtifactPathKey, s.modelPath,
		log.FeaturesKey, len(l.Model.FeatureNames),
	}
	if l.Header != nil {
		attrs = append(attrs, log.ChecksumKey, l.Header.Checksum)
	}
	s.logger.Info("Model loaded", attrs...)
	return nil
}

// Ready returns a ModelUnavailableError while no model is loaded.
func (s *Service) Ready() error {
	if s.handle.Snapshot() == nil {
		return errors.NewModelUnavailableError("")
	}
	return nil
}

// Info describes the model currently served.
func (s *Service) Info() (*ModelInfo, error) {
	l := s.handle.Snapshot()
	if l == nil {
		return nil, errors.NewModelUnavailableError("")
	}
	info := &ModelInfo{
		Path:         l.Path,
		FeatureNames: l.Model.FeatureNames,
		Trees:        len(l.Model.Trees),
		Params:       l.Model.Params,
		BaseValue:    l.Model.ExpectedValue(),
		Importance:   make(map[string]float64, len(l.Model.FeatureNames)),
		LoadedAt:     l.LoadedAt,
	}
	for i, name := range l.Model.FeatureNames {
		if i < len(l.Model.FeatureImportance) {
			info.Importance[name] = l.Model.FeatureImportance[i]
		}
	}
	if l.Header != nil {
		info.Checksum = l.Header.Checksum
		trained := l.Header.CreatedAt
		info.TrainedAt = &trained
	}
	return info, nil
}

// Predict scores one request.
func (s *Service) Predict(ctx context.Context, req *Request) (res *Result, err error) {
	start := time.Now()
	defer func() { s.observe(EndpointPredict, start, res, err) }()

	_, res, _, err = s.predict(ctx, "Service.Predict", req)
	return res, err
}

// PredictWithAttribution scores one request and attributes its raw score to
// the features. An attribution failure never fails the prediction.
func (s *Service) PredictWithAttribution(ctx context.Context, req *Request) (out *AttributedResult, err error) {
	start := time.Now()
	var res *Result
	defer func() { s.observe(EndpointPredictWithAttribution, start, res, err) }()

	l, res, row, err := s.predict(ctx, "Service.PredictWithAttribution", req)
	if err != nil {
		return nil, err
	}

	out = &AttributedResult{Result: *res, SHAPValues: map[string]float64{}}
	exp, aerr := explain(l, row)
	if aerr != nil {
		s.metrics.AttributionFailed()
		s.logger.Warn("Attribution failed", "error", aerr.Error())
		out.AttributionError = aerr.Error()
		return out, nil
	}
	for i, v := range exp.Values {
		out.SHAPValues[l.keys[i]] = v
	}
	base := exp.BaseValue
	out.BaseValue = &base
	return out, nil
}

// predict runs the shared steps of both endpoints on one model snapshot.
func (s *Service) predict(ctx context.Context, op string, req *Request) (*Loaded, *Result, []float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	// availability is reported before any field problem
	l := s.handle.Snapshot()
	if l == nil {
		return nil, nil, nil, errors.NewModelUnavailableError("")
	}
	if req == nil {
		return nil, nil, nil, errors.NewValidationError("body", "request body is required", nil)
	}
	if err := req.Validate(); err != nil {
		return nil, nil, nil, err
	}

	row, err := l.row(req)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := l.Model.PredictProbaSingle(row)
	if err != nil {
		return nil, nil, nil, errors.NewPredictionError(op, err)
	}

	res := &Result{
		Prediction:    int(gbdt.Label(p)),
		Probability:   p,
		RiskLevel:     RiskLevel(p),
		RiskScore:     p * 100,
		IgnoredFields: req.IgnoredFields(),
	}
	return l, res, row, nil
}

func explain(l *Loaded, row []float64) (exp *gbdt.Explanation, err error) {
	defer errors.Recover(&err, "inference.explain")
	if l.explainerErr != nil {
		return nil, errors.NewAttributionError(l.explainerErr)
	}
	exp, err = l.explainer.Explain(row)
	if err != nil {
		return nil, errors.NewAttributionError(err)
	}
	if err := exp.Check(gbdt.AdditivityTolerance); err != nil {
		return nil, errors.NewAttributionError(err)
	}
	return exp, nil
}

func (s *Service) observe(endpoint string, start time.Time, res *Result, err error) {
	s.metrics.ObservePrediction(endpoint, Outcome(err), time.Since(start))
	if err == nil && res != nil {
		s.metrics.ObserveRiskLevel(res.RiskLevel)
		if s.logger.Enabled(context.Background(), log.LevelDebug) {
			s.logger.Debug("Prediction served",
				log.OperationKey, log.OperationPredict,
				log.ProbabilityKey, res.Probability,
				log.RiskLevelKey, res.RiskLevel,
			)
		}
	}
}

// Outcome classifies err for metrics and status mapping.
func Outcome(err error) string {
	var ve *errors.ValidationError
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case errors.As(err, &ve):
		return telemetry.OutcomeInvalid
	case errors.Is(err, errors.ErrModelUnavailable):
		return telemetry.OutcomeUnavailable
	default:
		return telemetry.OutcomeError
	}
}
