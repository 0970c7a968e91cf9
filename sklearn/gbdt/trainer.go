package gbdt

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// splitEpsilon is the minimum gain a split must exceed to be kept.
const splitEpsilon = 1e-6

// Trainer implements exact greedy gradient boosting with second-order statistics.
// Training is single-threaded and deterministic for a fixed seed.
type Trainer struct {
	params TrainingParams

	// Data
	X *mat.Dense
	y []float64

	// Per-sample state
	gradients []float64
	hessians  []float64
	scores    []float64 // cached raw scores

	trees     []Tree
	iteration int

	objective ObjectiveFunction
	initScore float64
	sampler   *SamplingStrategy

	// features available to the tree being built
	activeFeatures []int

	// EvalHistory holds the training eval metric after each iteration.
	EvalHistory []float64

	logger log.Logger
}

// SplitInfo contains information about a candidate split
type SplitInfo struct {
	Feature   int
	Threshold float64
	Gain      float64
	LeftGrad  float64
	LeftHess  float64
	RightGrad float64
	RightHess float64
}

// NewTrainer creates a new trainer. Params are validated by Fit.
func NewTrainer(params TrainingParams) *Trainer {
	return &Trainer{
		params: params,
		logger: log.GetLoggerWithName("gbdt.trainer"),
	}
}

// Fit trains the ensemble on X (n×p) and binary labels y (n×1 or n-vector).
func (t *Trainer) Fit(X, y mat.Matrix) error {
	return t.FitContext(context.Background(), X, y)
}

// FitContext trains the ensemble, checking ctx between boosting iterations.
func (t *Trainer) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "Trainer.Fit")

	if err := t.params.Validate(); err != nil {
		return err
	}
	if err := t.setData(X, y); err != nil {
		return err
	}

	objFunc, err := CreateObjectiveFunction(t.params.Objective)
	if err != nil {
		return errors.Wrap(err, "failed to create objective function")
	}
	t.objective = objFunc
	t.initScore = t.objective.GetInitScore(t.y)
	t.sampler = NewSamplingStrategy(t.params)
	t.trees = t.trees[:0]
	t.EvalHistory = t.EvalHistory[:0]

	rows, cols := t.X.Dims()
	t.gradients = make([]float64, rows)
	t.hessians = make([]float64, rows)
	t.scores = make([]float64, rows)
	for i := range t.scores {
		t.scores[i] = t.initScore
	}

	t.logger.Debug("Training started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.LearningRateKey, t.params.LearningRate,
		log.RandomSeedKey, t.params.Seed,
	)

	for iter := 0; iter < t.params.NumIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "training cancelled at iteration %d", iter)
		}
		t.iteration = iter

		t.calculateGradients()

		tree := t.buildTree()
		t.trees = append(t.trees, tree)
		t.updateScores(&tree)

		metric := t.evaluate()
		if err := errors.CheckScalar("training_loss", metric, iter); err != nil {
			return err
		}
		t.EvalHistory = append(t.EvalHistory, metric)

		if t.params.LogEvery > 0 && (iter%t.params.LogEvery == 0 || iter == t.params.NumIterations-1) {
			t.logger.Debug("Training progress",
				log.IterationKey, iter,
				t.params.EvalMetric, metric,
			)
		}
	}

	return nil
}

func (t *Trainer) setData(X, y mat.Matrix) error {
	if X == nil || y == nil {
		return errors.ErrEmptyData
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.ErrEmptyData
	}
	yRows, yCols := y.Dims()
	if yCols != 1 && yRows == 1 {
		// accept a row vector
		yRows, yCols = yCols, yRows
		y = y.T()
	}
	if yRows != rows {
		return errors.NewDimensionError("Trainer.Fit", rows, yRows, 0)
	}

	xDense := mat.DenseCopyOf(X)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := xDense.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewValidationError("X", "features must be finite", errors.Newf("row %d col %d", i, j))
			}
		}
	}

	labels := make([]float64, rows)
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		if v != 0 && v != 1 {
			return errors.NewValidationError("y", "labels must be 0 or 1", v)
		}
		labels[i] = v
	}

	t.X = xDense
	t.y = labels
	return nil
}

// calculateGradients computes gradients and hessians from the cached raw scores
func (t *Trainer) calculateGradients() {
	for i, target := range t.y {
		t.gradients[i] = t.objective.CalculateGradient(t.scores[i], target)
		t.hessians[i] = t.objective.CalculateHessian(t.scores[i], target)
	}
}

// buildTree grows one depth-wise tree on a row and feature subsample
func (t *Trainer) buildTree() Tree {
	rows, cols := t.X.Dims()
	rowIdx := t.sampler.SampleInstances(rows)
	t.activeFeatures = t.sampler.SampleFeatures(cols)

	tree := Tree{
		TreeIndex:     t.iteration,
		ShrinkageRate: t.params.LearningRate,
		Nodes:         make([]Node, 0, 1<<(t.params.MaxDepth+1)),
	}
	t.buildNode(&tree, rowIdx, -1, 0)

	for i := range tree.Nodes {
		if tree.Nodes[i].IsLeaf() {
			tree.NumLeaves++
			if tree.Nodes[i].Depth > tree.MaxDepth {
				tree.MaxDepth = tree.Nodes[i].Depth
			}
		}
	}
	return tree
}

// buildNode recursively builds tree nodes and returns the index of the created node
func (t *Trainer) buildNode(tree *Tree, indices []int, parentIdx int, depth int) int {
	nodeIdx := len(tree.Nodes)

	sumGrad, sumHess := 0.0, 0.0
	for _, idx := range indices {
		sumGrad += t.gradients[idx]
		sumHess += t.hessians[idx]
	}

	tree.Nodes = append(tree.Nodes, Node{
		NodeID:      nodeIdx,
		ParentID:    parentIdx,
		LeftChild:   -1,
		RightChild:  -1,
		Depth:       depth,
		Cover:       sumHess,
		SampleCount: len(indices),
	})

	if depth >= t.params.MaxDepth || len(indices) < 2 {
		tree.Nodes[nodeIdx].LeafValue = t.calculateLeafValue(sumGrad, sumHess)
		return nodeIdx
	}

	best, ok := t.findBestSplit(indices, sumGrad, sumHess)
	if !ok {
		tree.Nodes[nodeIdx].LeafValue = t.calculateLeafValue(sumGrad, sumHess)
		return nodeIdx
	}

	leftIndices, rightIndices := t.splitData(indices, best)

	node := &tree.Nodes[nodeIdx]
	node.SplitFeature = best.Feature
	node.Threshold = best.Threshold
	node.Gain = best.Gain
	// Training data holds no NaN; a value missing at inference joins the
	// low side of the split.
	node.DefaultLeft = true

	leftChild := t.buildNode(tree, leftIndices, nodeIdx, depth+1)
	rightChild := t.buildNode(tree, rightIndices, nodeIdx, depth+1)

	// tree.Nodes may have been reallocated by the recursive calls
	tree.Nodes[nodeIdx].LeftChild = leftChild
	tree.Nodes[nodeIdx].RightChild = rightChild

	return nodeIdx
}

// findBestSplit finds the best split over the active features
func (t *Trainer) findBestSplit(indices []int, totalGrad, totalHess float64) (SplitInfo, bool) {
	best := SplitInfo{Gain: math.Inf(-1)}
	found := false

	for _, j := range t.activeFeatures {
		split, ok := t.findBestSplitForFeature(indices, j, totalGrad, totalHess)
		if ok && split.Gain > best.Gain {
			best = split
			found = true
		}
	}
	return best, found
}

// findBestSplitForFeature scans the sorted values of one feature
func (t *Trainer) findBestSplitForFeature(indices []int, feature int, totalGrad, totalHess float64) (SplitInfo, bool) {
	type valueIdx struct {
		value float64
		idx   int
	}
	values := make([]valueIdx, len(indices))
	for i, idx := range indices {
		values[i] = valueIdx{value: t.X.At(idx, feature), idx: idx}
	}
	sort.SliceStable(values, func(a, b int) bool {
		return values[a].value < values[b].value
	})

	best := SplitInfo{Feature: feature, Gain: math.Inf(-1)}
	found := false

	leftGrad, leftHess := 0.0, 0.0
	for i := 0; i < len(values)-1; i++ {
		idx := values[i].idx
		leftGrad += t.gradients[idx]
		leftHess += t.hessians[idx]

		if values[i].value == values[i+1].value {
			continue
		}

		rightGrad := totalGrad - leftGrad
		rightHess := totalHess - leftHess
		if leftHess < t.params.MinChildWeight || rightHess < t.params.MinChildWeight {
			continue
		}

		gain := t.calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess)
		if gain > splitEpsilon && gain > best.Gain {
			best.Gain = gain
			best.Threshold = (values[i].value + values[i+1].value) / 2
			best.LeftGrad, best.LeftHess = leftGrad, leftHess
			best.RightGrad, best.RightHess = rightGrad, rightHess
			found = true
		}
	}
	return best, found
}

// calculateSplitGain returns ½[G_L²/(H_L+λ) + G_R²/(H_R+λ) − G²/(H+λ)] − γ
func (t *Trainer) calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	lambda := t.params.Lambda
	leftScore := (leftGrad * leftGrad) / (leftHess + lambda)
	rightScore := (rightGrad * rightGrad) / (rightHess + lambda)
	totalScore := (totalGrad * totalGrad) / (totalHess + lambda)
	return 0.5*(leftScore+rightScore-totalScore) - t.params.Gamma
}

// splitData partitions indices by the split decision
func (t *Trainer) splitData(indices []int, split SplitInfo) ([]int, []int) {
	leftIndices := make([]int, 0, len(indices))
	rightIndices := make([]int, 0, len(indices))
	for _, idx := range indices {
		if t.X.At(idx, split.Feature) <= split.Threshold {
			leftIndices = append(leftIndices, idx)
		} else {
			rightIndices = append(rightIndices, idx)
		}
	}
	return leftIndices, rightIndices
}

// calculateLeafValue returns the optimal leaf weight −G/(H+λ)
func (t *Trainer) calculateLeafValue(sumGrad, sumHess float64) float64 {
	denom := sumHess + t.params.Lambda
	if denom <= 0 {
		return 0
	}
	return -sumGrad / denom
}

// updateScores adds the new tree's output to every cached raw score
func (t *Trainer) updateScores(tree *Tree) {
	rows, cols := t.X.Dims()
	features := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(features, i, t.X)
		t.scores[i] += tree.Predict(features)
	}
}

// evaluate computes the configured training metric from the cached scores
func (t *Trainer) evaluate() float64 {
	n := float64(len(t.y))
	total := 0.0
	for i, target := range t.y {
		switch t.params.EvalMetric {
		case EvalError:
			if Label(sigmoid(t.scores[i])) != target {
				total++
			}
		default:
			total += t.objective.CalculateLoss(t.scores[i], target)
		}
	}
	return total / n
}

// GetModel returns the trained model
func (t *Trainer) GetModel() *Model {
	_, cols := t.X.Dims()
	trees := make([]Tree, len(t.trees))
	copy(trees, t.trees)

	model := &Model{
		Objective:   t.objective.Name(),
		NumFeatures: cols,
		Params:      t.params,
		InitScore:   t.initScore,
		Trees:       trees,
	}
	model.FeatureImportance = model.GetFeatureImportance("gain")
	return model
}
