// Package training runs the offline pipeline: load the dataset, estimate
// generalization with stratified cross-validation, fit the final model on all
// rows, write the artifact and record the run.
package training

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/internal/config"
	"github.com/YuminosukeSato/heartrisk/internal/dataset"
	"github.com/YuminosukeSato/heartrisk/internal/registry"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/sklearn/gbdt"
)

// Options configures a Pipeline.
type Options struct {
	DatasetPath string
	Dataset     dataset.Options
	Params      gbdt.TrainingParams

	Folds   int
	Shuffle bool
	Workers int

	// ModelPath is where Train writes the artifact.
	ModelPath string
}

// OptionsFromConfig maps the loaded configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DatasetPath: cfg.Data.Path,
		Dataset:     cfg.DatasetOptions(),
		Params:      cfg.Training.Params,
		Folds:       cfg.Training.Folds,
		Shuffle:     cfg.Training.Shuffle,
		Workers:     cfg.Training.Workers,
		ModelPath:   cfg.Model.Path,
	}
}

// Result is the outcome of a completed training run.
type Result struct {
	Run    registry.RunRecord
	Model  *gbdt.Model
	Report *gbdt.CVReport
	Header *model.ArtifactHeader
}

// Pipeline trains and evaluates heart-disease models.
type Pipeline struct {
	opts   Options
	runs   *registry.Store
	logger log.Logger
}

// New creates a pipeline. runs may be nil, in which case runs are not recorded.
func New(opts Options, runs *registry.Store) *Pipeline {
	return &Pipeline{
		opts:   opts,
		runs:   runs,
		logger: log.GetLoggerWithName("training"),
	}
}

// Evaluate loads the dataset and cross-validates the configured params
// without fitting or saving a final model.
func (p *Pipeline) Evaluate(ctx context.Context) (*dataset.Dataset, *gbdt.CVReport, error) {
	ds, err := dataset.Load(p.opts.DatasetPath, p.opts.Dataset)
	if err != nil {
		return nil, nil, err
	}
	report, err := p.crossValidate(ctx, ds)
	if err != nil {
		return ds, nil, err
	}
	return ds, report, nil
}

// Train runs the full pipeline. The run is recorded in the registry whether
// it succeeds or fails.
func (p *Pipeline) Train(ctx context.Context) (*Result, error) {
	runID, err := registry.NewRunID()
	if err != nil {
		return nil, err
	}
	rec := registry.RunRecord{
		ID:          runID,
		StartedAt:   time.Now().UTC(),
		DatasetPath: p.opts.DatasetPath,
		Params:      p.opts.Params,
	}
	logger := p.logger.With(log.RunIDKey, runID)

	res, err := p.train(ctx, logger, &rec)
	rec.FinishedAt = time.Now().UTC()
	if err != nil {
		rec.Status = registry.StatusFailed
		rec.Error = err.Error()
		logger.Error("Training run failed", err)
	} else {
		rec.Status = registry.StatusSucceeded
	}

	if p.runs != nil {
		if perr := p.runs.Put(&rec); perr != nil {
			if err == nil {
				return nil, errors.Wrap(perr, "failed to record training run")
			}
			logger.Warn("Failed to record training run", "error", perr.Error())
		}
	}
	if err != nil {
		return nil, err
	}

	res.Run = rec
	logger.Info("Training run completed",
		log.DurationMsKey, rec.Duration().Milliseconds(),
		log.ArtifactPathKey, rec.ArtifactPath,
	)
	return res, nil
}

func (p *Pipeline) train(ctx context.Context, logger log.Logger, rec *registry.RunRecord) (*Result, error) {
	ds, err := dataset.Load(p.opts.DatasetPath, p.opts.Dataset)
	if err != nil {
		return nil, err
	}
	rec.Rows = ds.Rows()
	rec.Positives = ds.Positives()
	rec.FeatureNames = ds.FeatureNames

	report, err := p.crossValidate(ctx, ds)
	if err != nil {
		return nil, err
	}
	rec.CV = report

	logger.Info("Fitting final model",
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, ds.Rows(),
	)
	clf := gbdt.NewGBDTClassifier().
		WithParams(p.opts.Params).
		WithFeatureNames(ds.FeatureNames)
	if err := clf.FitContext(ctx, ds.X, ds.Labels()); err != nil {
		return nil, errors.Wrap(err, "final fit failed")
	}

	header, err := gbdt.SaveModel(clf.Model, p.opts.ModelPath)
	if err != nil {
		return nil, err
	}
	rec.ArtifactPath = p.opts.ModelPath
	rec.Checksum = header.Checksum

	return &Result{Model: clf.Model, Report: report, Header: header}, nil
}

func (p *Pipeline) crossValidate(ctx context.Context, ds *dataset.Dataset) (*gbdt.CVReport, error) {
	p.logger.Info("Running cross-validation",
		log.OperationKey, log.OperationCrossValidate,
		log.NumFoldsKey, p.opts.Folds,
		log.RandomSeedKey, p.opts.Params.Seed,
	)
	splitter := gbdt.NewStratifiedKFold(p.opts.Folds, p.opts.Shuffle, p.opts.Params.Seed)
	report, err := gbdt.CrossValidate(ctx, p.opts.Params, ds.X, ds.Labels(), splitter,
		gbdt.CVOptions{Workers: p.opts.Workers})
	if err != nil {
		return nil, errors.Wrap(err, "cross-validation failed")
	}
	p.logger.Info("Cross-validation finished",
		log.AccuracyKey, report.Accuracy.Mean,
		log.PrecisionKey, report.Precision.Mean,
		log.RecallKey, report.Recall.Mean,
		log.F1Key, report.F1.Mean,
		log.AUCKey, report.AUC.Mean,
	)
	return report, nil
}

// FeatureImportance pairs a feature with its normalized gain importance.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RankImportance returns the model's features ordered by decreasing importance.
func RankImportance(m *gbdt.Model) []FeatureImportance {
	out := make([]FeatureImportance, len(m.FeatureNames))
	for i, name := range m.FeatureNames {
		out[i] = FeatureImportance{Feature: name}
		if i < len(m.FeatureImportance) {
			out[i].Importance = m.FeatureImportance[i]
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}

// WriteReport prints the human-readable summary of a training run.
func WriteReport(w io.Writer, res *Result) error {
	if _, err := fmt.Fprint(w, res.Report.String()); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nModel saved to %s (sha256 %s)\n", res.Run.ArtifactPath, res.Header.Checksum)
	fmt.Fprintf(w, "Run ID: %s\n", res.Run.ID)
	fmt.Fprintln(w, "Feature importances:")
	for _, fi := range RankImportance(res.Model) {
		fmt.Fprintf(w, "  %-10s %.4f\n", fi.Feature, fi.Importance)
	}
	return nil
}
