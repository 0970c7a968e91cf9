package gbdt

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/parallel"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// AdditivityTolerance is the maximum allowed gap between base + Σφ and the raw score.
const AdditivityTolerance = 1e-4

// SHAPValues holds SHAP values for a batch of samples
type SHAPValues struct {
	Values       *mat.Dense // SHAP values matrix (samples x features)
	BaseValue    float64    // Expected raw output (log-odds)
	FeatureNames []string
}

// Explanation is the additive attribution of a single row.
type Explanation struct {
	BaseValue    float64
	RawScore     float64
	Values       []float64
	FeatureNames []string
}

// Sum returns base value plus all contributions.
func (e *Explanation) Sum() float64 {
	total := e.BaseValue
	for _, v := range e.Values {
		total += v
	}
	return total
}

// Check verifies base + Σφ reproduces the raw score within tol.
func (e *Explanation) Check(tol float64) error {
	if gap := math.Abs(e.Sum() - e.RawScore); gap > tol || math.IsNaN(gap) {
		return errors.NewModelError("Explanation.Check", "additivity violated",
			errors.Newf("base %.6g + contributions = %.6g, raw score %.6g", e.BaseValue, e.Sum(), e.RawScore))
	}
	return nil
}

// ByName maps each feature name to its contribution.
func (e *Explanation) ByName() map[string]float64 {
	out := make(map[string]float64, len(e.Values))
	for i, v := range e.Values {
		out[e.FeatureNames[i]] = v
	}
	return out
}

// TreeSHAP computes exact path-dependent Shapley values for a boosted ensemble.
// Node cover (sum of training hessians) defines the background distribution, so
// no reference dataset is needed. A TreeSHAP is safe for concurrent use.
type TreeSHAP struct {
	model     *Model
	baseValue float64
}

// NewTreeSHAP creates an explainer for model.
func NewTreeSHAP(model *Model) (*TreeSHAP, error) {
	if model == nil || len(model.Trees) == 0 {
		return nil, errors.NewNotFittedError("TreeSHAP", "NewTreeSHAP")
	}
	return &TreeSHAP{model: model, baseValue: model.ExpectedValue()}, nil
}

// BaseValue returns the expected raw output of the model.
func (ts *TreeSHAP) BaseValue() float64 {
	return ts.baseValue
}

// Explain attributes the raw score of one row to its features.
func (ts *TreeSHAP) Explain(features []float64) (*Explanation, error) {
	raw, err := ts.model.RawScore(features)
	if err != nil {
		return nil, err
	}
	phi := ts.calculateSampleSHAP(features)
	if err := errors.CheckNumericalStability("TreeSHAP.Explain", phi, 0); err != nil {
		return nil, err
	}
	return &Explanation{
		BaseValue:    ts.baseValue,
		RawScore:     raw,
		Values:       phi,
		FeatureNames: ts.model.FeatureNames,
	}, nil
}

// shapParallelThreshold is the batch size above which rows are explained concurrently.
const shapParallelThreshold = 64

// CalculateSHAP calculates SHAP values for every row of X
func (ts *TreeSHAP) CalculateSHAP(X mat.Matrix) (*SHAPValues, error) {
	rows, cols := X.Dims()
	if cols != ts.model.NumFeatures {
		return nil, errors.NewDimensionError("TreeSHAP.CalculateSHAP", ts.model.NumFeatures, cols, 1)
	}

	values := mat.NewDense(rows, cols, nil)
	rowErrs := make([]error, rows)
	parallel.ParallelizeWithThreshold(rows, shapParallelThreshold, func(start, end int) {
		sample := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(sample, i, X)
			phi := ts.calculateSampleSHAP(sample)
			if err := errors.CheckNumericalStability("TreeSHAP.CalculateSHAP", phi, i); err != nil {
				rowErrs[i] = err
				continue
			}
			values.SetRow(i, phi)
		}
	})
	for _, err := range rowErrs {
		if err != nil {
			return nil, err
		}
	}

	return &SHAPValues{
		Values:       values,
		BaseValue:    ts.baseValue,
		FeatureNames: ts.model.FeatureNames,
	}, nil
}

// GlobalImportance returns the mean absolute contribution of each feature over X.
func (ts *TreeSHAP) GlobalImportance(X mat.Matrix) ([]float64, error) {
	sv, err := ts.CalculateSHAP(X)
	if err != nil {
		return nil, err
	}
	rows, cols := sv.Values.Dims()
	importance := make([]float64, cols)
	if rows == 0 {
		return importance, nil
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			importance[j] += math.Abs(sv.Values.At(i, j))
		}
	}
	for j := range importance {
		importance[j] /= float64(rows)
	}
	return importance, nil
}

func (ts *TreeSHAP) calculateSampleSHAP(sample []float64) []float64 {
	phi := make([]float64, ts.model.NumFeatures)
	for i := range ts.model.Trees {
		tree := &ts.model.Trees[i]
		if len(tree.Nodes) == 0 {
			continue
		}
		ts.recurse(tree, sample, phi, 0, nil, 0, 1, 1, -1)
	}
	return phi
}

// pathElement is one unique feature on the current root-to-node path.
type pathElement struct {
	featureIndex int
	zeroFraction float64 // fraction of cover that flows here when the feature is unknown
	oneFraction  float64 // 1 if the sample itself flows here, 0 otherwise
	pweight      float64 // permutation weight
}

// recurse walks every root-to-leaf path, maintaining the permutation weights of the
// unique features seen so far and crediting each leaf's value to them.
func (ts *TreeSHAP) recurse(tree *Tree, sample, phi []float64, nodeID int, parentPath []pathElement,
	uniqueDepth int, parentZero, parentOne float64, parentFeature int) {

	path := make([]pathElement, uniqueDepth+1, uniqueDepth+2)
	copy(path, parentPath[:uniqueDepth])
	extendPath(path, uniqueDepth, parentZero, parentOne, parentFeature)

	node := &tree.Nodes[nodeID]
	if node.IsLeaf() {
		leafValue := node.LeafValue * tree.ShrinkageRate
		for i := 1; i <= uniqueDepth; i++ {
			w := unwoundPathSum(path, uniqueDepth, i)
			el := path[i]
			phi[el.featureIndex] += w * (el.oneFraction - el.zeroFraction) * leafValue
		}
		return
	}

	hot, cold := node.RightChild, node.LeftChild
	if node.goesLeft(sample[node.SplitFeature]) {
		hot, cold = node.LeftChild, node.RightChild
	}
	wl, wr := tree.childWeights(node)
	hotZero, coldZero := wr, wl
	if hot == node.LeftChild {
		hotZero, coldZero = wl, wr
	}

	incomingZero, incomingOne := 1.0, 1.0
	for k := 1; k <= uniqueDepth; k++ {
		if path[k].featureIndex == node.SplitFeature {
			incomingZero, incomingOne = path[k].zeroFraction, path[k].oneFraction
			unwindPath(path, uniqueDepth, k)
			uniqueDepth--
			break
		}
	}

	ts.recurse(tree, sample, phi, hot, path, uniqueDepth+1, hotZero*incomingZero, incomingOne, node.SplitFeature)
	ts.recurse(tree, sample, phi, cold, path, uniqueDepth+1, coldZero*incomingZero, 0, node.SplitFeature)
}

func extendPath(path []pathElement, uniqueDepth int, zeroFraction, oneFraction float64, featureIndex int) {
	path[uniqueDepth] = pathElement{
		featureIndex: featureIndex,
		zeroFraction: zeroFraction,
		oneFraction:  oneFraction,
	}
	if uniqueDepth == 0 {
		path[uniqueDepth].pweight = 1
	}
	d := float64(uniqueDepth + 1)
	for i := uniqueDepth - 1; i >= 0; i-- {
		path[i+1].pweight += oneFraction * path[i].pweight * float64(i+1) / d
		path[i].pweight = zeroFraction * path[i].pweight * float64(uniqueDepth-i) / d
	}
}

// unwindPath removes the element at pathIndex, undoing its extendPath.
func unwindPath(path []pathElement, uniqueDepth, pathIndex int) {
	one := path[pathIndex].oneFraction
	zero := path[pathIndex].zeroFraction
	nextOne := path[uniqueDepth].pweight
	d := float64(uniqueDepth + 1)

	for i := uniqueDepth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].pweight
			path[i].pweight = nextOne * d / (float64(i+1) * one)
			nextOne = tmp - path[i].pweight*zero*float64(uniqueDepth-i)/d
		} else {
			path[i].pweight = path[i].pweight * d / (zero * float64(uniqueDepth-i))
		}
	}

	for i := pathIndex; i < uniqueDepth; i++ {
		path[i].featureIndex = path[i+1].featureIndex
		path[i].zeroFraction = path[i+1].zeroFraction
		path[i].oneFraction = path[i+1].oneFraction
	}
}

// unwoundPathSum returns the total permutation weight of the path with
// the element at pathIndex removed, without modifying path.
func unwoundPathSum(path []pathElement, uniqueDepth, pathIndex int) float64 {
	one := path[pathIndex].oneFraction
	zero := path[pathIndex].zeroFraction
	nextOne := path[uniqueDepth].pweight
	d := float64(uniqueDepth + 1)

	total := 0.0
	for i := uniqueDepth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := nextOne * d / (float64(i+1) * one)
			total += tmp
			nextOne = path[i].pweight - tmp*zero*float64(uniqueDepth-i)/d
		} else if zero != 0 {
			total += path[i].pweight / zero / (float64(uniqueDepth-i) / d)
		}
	}
	return total
}

// PredictSHAP computes SHAP values for X with the fitted classifier.
func (c *GBDTClassifier) PredictSHAP(X mat.Matrix) (*SHAPValues, error) {
	if err := c.state.RequireFitted("GBDTClassifier", "PredictSHAP"); err != nil {
		return nil, err
	}
	ts, err := NewTreeSHAP(c.Model)
	if err != nil {
		return nil, err
	}
	return ts.CalculateSHAP(X)
}
