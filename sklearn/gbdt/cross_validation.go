package gbdt

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartrisk/metrics"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// KFoldSplitter defines interface for cross-validation splitters
type KFoldSplitter interface {
	Split(X, y mat.Matrix) ([]CVFold, error)
	GetNSplits() int
}

// CVFold represents a single fold in cross-validation
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomSeed uint64) *KFold {
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold
func (kf *KFold) Split(X, _ mat.Matrix) ([]CVFold, error) {
	nSamples, _ := X.Dims()
	if err := checkSplits(kf.NSplits, nSamples); err != nil {
		return nil, err
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.RandomSeed, kf.RandomSeed))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	assignment := make([]int, nSamples)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits
	pos := 0
	for f := 0; f < kf.NSplits; f++ {
		size := foldSize
		if f < remainder {
			size++
		}
		for _, idx := range indices[pos : pos+size] {
			assignment[idx] = f
		}
		pos += size
	}
	return foldsFromAssignment(assignment, kf.NSplits), nil
}

// StratifiedKFold implements stratified k-fold cross-validation.
// Classes are visited in ascending label order and each class's (optionally
// shuffled) indices are dealt round-robin across folds, continuing from the
// fold where the previous class stopped. Per class, fold counts differ by at
// most one, and a fixed seed always yields the same folds.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]CVFold, error) {
	nSamples, _ := X.Dims()
	if err := checkSplits(skf.NSplits, nSamples); err != nil {
		return nil, err
	}
	if yRows, _ := y.Dims(); yRows != nSamples {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", nSamples, yRows, 0)
	}

	classIndices := make(map[float64][]int)
	for i := 0; i < nSamples; i++ {
		label := y.At(i, 0)
		classIndices[label] = append(classIndices[label], i)
	}
	labels := make([]float64, 0, len(classIndices))
	for label := range classIndices {
		labels = append(labels, label)
	}
	sort.Float64s(labels)

	var r *rand.Rand
	if skf.Shuffle {
		r = rand.New(rand.NewPCG(skf.RandomSeed, skf.RandomSeed))
	}

	assignment := make([]int, nSamples)
	next := 0
	for _, label := range labels {
		indices := classIndices[label]
		if r != nil {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		for _, idx := range indices {
			assignment[idx] = next
			next = (next + 1) % skf.NSplits
		}
	}
	return foldsFromAssignment(assignment, skf.NSplits), nil
}

func checkSplits(k, n int) error {
	if k < 2 {
		return errors.NewValidationError("n_splits", "must be at least 2", k)
	}
	if k > n {
		return errors.NewValidationError("n_splits", fmt.Sprintf("cannot be greater than the number of samples (%d)", n), k)
	}
	return nil
}

// foldsFromAssignment builds folds with ascending index lists.
func foldsFromAssignment(assignment []int, k int) []CVFold {
	folds := make([]CVFold, k)
	for idx, f := range assignment {
		folds[f].TestIndices = append(folds[f].TestIndices, idx)
	}
	for f := range folds {
		train := make([]int, 0, len(assignment)-len(folds[f].TestIndices))
		for idx, g := range assignment {
			if g != f {
				train = append(train, idx)
			}
		}
		folds[f].TrainIndices = train
	}
	return folds
}

// FoldMetrics holds the held-out metrics of one fold.
type FoldMetrics struct {
	Fold      int     `json:"fold"`
	TrainSize int     `json:"train_size"`
	TestSize  int     `json:"test_size"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	// AUC is meaningful only when AUCDefined is true.
	AUC        float64 `json:"auc"`
	AUCDefined bool    `json:"auc_defined"`
	LogLoss    float64 `json:"logloss"`
	Brier      float64 `json:"brier"`
	FitTime    float64 `json:"fit_seconds"`
}

// MetricSummary is the mean and population standard deviation over N folds.
type MetricSummary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	N    int     `json:"n"`
}

func (s MetricSummary) String() string {
	if s.N == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.4f ± %.4f", s.Mean, s.Std)
}

// FoldFailure records a fold whose training or scoring failed.
type FoldFailure struct {
	Fold  int    `json:"fold"`
	Error string `json:"error"`
}

// CVReport is the outcome of a cross-validation run.
type CVReport struct {
	NSplits int           `json:"n_splits"`
	Folds   []FoldMetrics `json:"folds"`

	// FailedFolds are excluded from every aggregate.
	FailedFolds []FoldFailure `json:"failed_folds,omitempty"`

	// AUCExcludedFolds lists folds whose test set held a single class.
	AUCExcludedFolds []int `json:"auc_excluded_folds,omitempty"`

	Accuracy  MetricSummary `json:"accuracy"`
	Precision MetricSummary `json:"precision"`
	Recall    MetricSummary `json:"recall"`
	F1        MetricSummary `json:"f1"`
	AUC       MetricSummary `json:"auc"`
	LogLoss   MetricSummary `json:"logloss"`
	Brier     MetricSummary `json:"brier"`
}

// String renders the report the way it is printed after training.
func (r *CVReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Cross-validation (%d folds, %d succeeded)\n", r.NSplits, len(r.Folds))
	fmt.Fprintf(&sb, "  accuracy:  %s\n", r.Accuracy)
	fmt.Fprintf(&sb, "  precision: %s\n", r.Precision)
	fmt.Fprintf(&sb, "  recall:    %s\n", r.Recall)
	fmt.Fprintf(&sb, "  f1:        %s\n", r.F1)
	fmt.Fprintf(&sb, "  auc:       %s", r.AUC)
	if len(r.AUCExcludedFolds) > 0 {
		fmt.Fprintf(&sb, " (excluded single-class folds %v)", r.AUCExcludedFolds)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  logloss:   %s\n", r.LogLoss)
	for _, f := range r.FailedFolds {
		fmt.Fprintf(&sb, "  fold %d failed: %s\n", f.Fold, f.Error)
	}
	return sb.String()
}

// CVOptions tunes how CrossValidate schedules folds.
type CVOptions struct {
	// Workers bounds the number of folds trained concurrently (default 1).
	Workers int
}

// CrossValidate trains a fresh model per fold with params and evaluates it
// on the held-out rows. A fold that fails is recorded and excluded; the run
// fails only if every fold fails.
func CrossValidate(ctx context.Context, params TrainingParams, X, y mat.Matrix, splitter KFoldSplitter, opts CVOptions) (*CVReport, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	folds, err := splitter.Split(X, y)
	if err != nil {
		return nil, err
	}

	logger := log.GetLoggerWithName("gbdt.cv")
	nFolds := len(folds)
	results := make([]FoldMetrics, nFolds)
	foldErrs := make([]error, nFolds)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for foldIdx := 0; foldIdx < nFolds; foldIdx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			foldErrs[idx] = errors.SafeExecute(fmt.Sprintf("CrossValidate.fold%d", idx), func() error {
				m, err := evaluateFold(ctx, params, X, y, folds[idx])
				if err != nil {
					return err
				}
				m.Fold = idx
				results[idx] = m
				return nil
			})
		}(foldIdx)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "cross-validation cancelled")
	}

	report := &CVReport{NSplits: nFolds}
	for idx := 0; idx < nFolds; idx++ {
		if foldErrs[idx] != nil {
			errors.Warn(errors.NewFoldFailedWarning(idx, foldErrs[idx]))
			report.FailedFolds = append(report.FailedFolds, FoldFailure{Fold: idx, Error: foldErrs[idx].Error()})
			continue
		}
		m := results[idx]
		report.Folds = append(report.Folds, m)
		if !m.AUCDefined {
			report.AUCExcludedFolds = append(report.AUCExcludedFolds, idx)
		}
		logger.Debug("Fold evaluated",
			log.FoldKey, idx,
			log.AccuracyKey, m.Accuracy,
			log.PrecisionKey, m.Precision,
			log.RecallKey, m.Recall,
			log.F1Key, m.F1,
			log.AUCKey, m.AUC,
		)
	}
	if len(report.Folds) == 0 {
		return report, errors.NewModelError("CrossValidate", "all folds failed", foldErrs[0])
	}

	report.aggregate()
	return report, nil
}

func evaluateFold(ctx context.Context, params TrainingParams, X, y mat.Matrix, fold CVFold) (FoldMetrics, error) {
	trainX, trainY := extractSubset(X, y, fold.TrainIndices)
	testX, testY := extractSubset(X, y, fold.TestIndices)

	start := time.Now()
	trainer := NewTrainer(params)
	if err := trainer.FitContext(ctx, trainX, trainY); err != nil {
		return FoldMetrics{}, errors.Wrap(err, "training failed")
	}
	model := trainer.GetModel()
	fitTime := time.Since(start).Seconds()

	proba, err := model.PredictProba(testX)
	if err != nil {
		return FoldMetrics{}, errors.Wrap(err, "prediction failed")
	}

	n := len(fold.TestIndices)
	yTrue := mat.VecDenseCopyOf(testY.ColView(0))
	yProb := mat.NewVecDense(n, nil)
	yPred := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		p := proba.At(i, 1)
		yProb.SetVec(i, p)
		yPred.SetVec(i, Label(p))
	}

	confusion, err := metrics.Confusion(yTrue, yPred)
	if err != nil {
		return FoldMetrics{}, err
	}
	accuracy, err := metrics.Accuracy(yTrue, yPred)
	if err != nil {
		return FoldMetrics{}, err
	}
	logLoss, err := metrics.BinaryLogLoss(yTrue, yProb)
	if err != nil {
		return FoldMetrics{}, err
	}
	brier, err := metrics.BrierScore(yTrue, yProb)
	if err != nil {
		return FoldMetrics{}, err
	}

	m := FoldMetrics{
		TrainSize: len(fold.TrainIndices),
		TestSize:  n,
		Accuracy:  accuracy,
		Precision: confusion.Precision(),
		Recall:    confusion.Recall(),
		F1:        confusion.F1(),
		LogLoss:   logLoss,
		Brier:     brier,
		FitTime:   fitTime,
	}
	if metrics.HasBothClasses(yTrue) {
		auc, err := metrics.AUC(yTrue, yProb)
		if err != nil {
			return FoldMetrics{}, err
		}
		m.AUC = auc
		m.AUCDefined = true
	}
	return m, nil
}

func (r *CVReport) aggregate() {
	var acc, prec, rec, f1, auc, ll, brier []float64
	for _, f := range r.Folds {
		acc = append(acc, f.Accuracy)
		prec = append(prec, f.Precision)
		rec = append(rec, f.Recall)
		f1 = append(f1, f.F1)
		ll = append(ll, f.LogLoss)
		brier = append(brier, f.Brier)
		if f.AUCDefined {
			auc = append(auc, f.AUC)
		}
	}
	r.Accuracy = summarize(acc)
	r.Precision = summarize(prec)
	r.Recall = summarize(rec)
	r.F1 = summarize(f1)
	r.AUC = summarize(auc)
	r.LogLoss = summarize(ll)
	r.Brier = summarize(brier)
}

// summarize returns mean and population standard deviation (ddof = 0).
func summarize(x []float64) MetricSummary {
	if len(x) == 0 {
		return MetricSummary{}
	}
	mean, std := stat.PopMeanStdDev(x, nil)
	return MetricSummary{Mean: mean, Std: std, N: len(x)}
}

// extractSubset copies the rows at indices into new dense matrices
func extractSubset(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.Dense) {
	_, xCols := X.Dims()
	xSubset := mat.NewDense(len(indices), xCols, nil)
	ySubset := mat.NewDense(len(indices), 1, nil)
	for i, idx := range indices {
		for j := 0; j < xCols; j++ {
			xSubset.Set(i, j, X.At(idx, j))
		}
		ySubset.Set(i, 0, y.At(idx, 0))
	}
	return xSubset, ySubset
}
