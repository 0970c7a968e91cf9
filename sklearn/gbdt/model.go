package gbdt

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Node represents a single node in a decision tree.
// Nodes are stored in a flat slice; children are referenced by index.
type Node struct {
	// Node identification
	NodeID     int // Index of the node in Tree.Nodes
	ParentID   int // Parent node index (-1 for root)
	LeftChild  int // Left child index (-1 if leaf)
	RightChild int // Right child index (-1 if leaf)
	Depth      int

	// Split information (for non-leaf nodes)
	SplitFeature int     // Feature index used for splitting
	Threshold    float64 // Samples with value <= Threshold go left
	DefaultLeft  bool    // Direction for NaN values seen at inference
	Gain         float64 // Split gain (reduction in loss)

	// Leaf information (for leaf nodes), before shrinkage
	LeafValue float64

	// Statistics
	Cover       float64 // Sum of hessians of training samples reaching this node
	SampleCount int     // Number of training samples reaching this node
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// goesLeft reports the decision taken at an internal node for value v.
func (n *Node) goesLeft(v float64) bool {
	if math.IsNaN(v) {
		return n.DefaultLeft
	}
	return v <= n.Threshold
}

// Tree represents a single regression tree in the ensemble
type Tree struct {
	TreeIndex     int     // Index of the tree in ensemble
	NumLeaves     int     // Number of leaf nodes
	MaxDepth      int     // Depth of the deepest leaf
	ShrinkageRate float64 // Learning rate applied to this tree

	Nodes []Node // All nodes in the tree, root first
}

// Predict returns the shrunk leaf value reached by features.
func (t *Tree) Predict(features []float64) float64 {
	nodeID := 0
	for nodeID >= 0 && nodeID < len(t.Nodes) {
		node := &t.Nodes[nodeID]
		if node.IsLeaf() {
			return node.LeafValue * t.ShrinkageRate
		}
		if node.goesLeft(features[node.SplitFeature]) {
			nodeID = node.LeftChild
		} else {
			nodeID = node.RightChild
		}
	}
	return 0.0
}

// ExpectedValue returns the cover-weighted mean of the tree's shrunk leaf outputs,
// i.e. the expected tree output over the training distribution.
func (t *Tree) ExpectedValue() float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	return t.expectedValue(0) * t.ShrinkageRate
}

func (t *Tree) expectedValue(nodeID int) float64 {
	node := &t.Nodes[nodeID]
	if node.IsLeaf() {
		return node.LeafValue
	}
	wl, wr := t.childWeights(node)
	return wl*t.expectedValue(node.LeftChild) + wr*t.expectedValue(node.RightChild)
}

// childWeights returns the fraction of training cover flowing to each child
// of an internal node. The two weights always sum to 1.
func (t *Tree) childWeights(node *Node) (float64, float64) {
	left, right := t.Nodes[node.LeftChild].Cover, t.Nodes[node.RightChild].Cover
	if left+right <= 0 {
		return 0.5, 0.5
	}
	wl := left / (left + right)
	return wl, 1 - wl
}

// validate checks structural integrity: child indices in range, parents consistent,
// split features below numFeatures.
func (t *Tree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.NewModelError("Tree.validate", "empty tree", nil)
	}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			continue
		}
		if n.LeftChild <= i || n.LeftChild >= len(t.Nodes) || n.RightChild <= i || n.RightChild >= len(t.Nodes) {
			return errors.NewModelError("Tree.validate", "dangling child index", errors.Newf("tree %d node %d", t.TreeIndex, i))
		}
		if n.SplitFeature < 0 || n.SplitFeature >= numFeatures {
			return errors.NewModelError("Tree.validate", "split feature out of range", errors.Newf("tree %d node %d feature %d", t.TreeIndex, i, n.SplitFeature))
		}
	}
	return nil
}

// Model represents a trained gradient-boosted ensemble for binary classification.
// A Model is immutable after training and safe for concurrent reads.
type Model struct {
	Objective    string
	NumFeatures  int
	FeatureNames []string
	Params       TrainingParams

	// InitScore is the base log-odds every prediction starts from.
	InitScore float64

	Trees []Tree

	// FeatureImportance is total split gain per feature, normalized to sum 1.
	FeatureImportance []float64
}

// RawScore returns the log-odds score for a single sample.
func (m *Model) RawScore(features []float64) (float64, error) {
	if len(features) != m.NumFeatures {
		return 0, errors.NewDimensionError("Model.RawScore", m.NumFeatures, len(features), 1)
	}
	score := m.InitScore
	for i := range m.Trees {
		score += m.Trees[i].Predict(features)
	}
	return score, nil
}

// PredictProbaSingle returns P(y=1) for a single sample.
func (m *Model) PredictProbaSingle(features []float64) (float64, error) {
	raw, err := m.RawScore(features)
	if err != nil {
		return 0, err
	}
	return sigmoid(raw), nil
}

// PredictProba returns an n×2 matrix of class probabilities [P(y=0), P(y=1)].
func (m *Model) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("Model.PredictProba", m.NumFeatures, cols, 1)
	}
	out := mat.NewDense(rows, 2, nil)
	features := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(features, i, X)
		p, err := m.PredictProbaSingle(features)
		if err != nil {
			return nil, err
		}
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

// Predict returns hard labels (P(y=1) >= 0.5) as an n×1 matrix.
func (m *Model) Predict(X mat.Matrix) (*mat.Dense, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, Label(proba.At(i, 1)))
	}
	return out, nil
}

// Label converts a probability into the hard class label.
func Label(p float64) float64 {
	if p >= 0.5 {
		return 1
	}
	return 0
}

// ExpectedValue returns the model's expected raw output over the training distribution.
func (m *Model) ExpectedValue() float64 {
	base := m.InitScore
	for i := range m.Trees {
		base += m.Trees[i].ExpectedValue()
	}
	return base
}

// GetFeatureImportance calculates importance scores.
// importanceType is "gain" (total split gain) or "split" (number of splits);
// scores are normalized to sum 1 when any split exists.
func (m *Model) GetFeatureImportance(importanceType string) []float64 {
	importance := make([]float64, m.NumFeatures)

	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			switch importanceType {
			case "split":
				importance[node.SplitFeature]++
			default:
				importance[node.SplitFeature] += node.Gain
			}
		}
	}

	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}
	return importance
}

// Validate checks the model is internally consistent.
func (m *Model) Validate() error {
	if m.NumFeatures <= 0 {
		return errors.NewModelError("Model.Validate", "no features", nil)
	}
	if len(m.FeatureNames) != m.NumFeatures {
		return errors.NewDimensionError("Model.Validate", m.NumFeatures, len(m.FeatureNames), 1)
	}
	if len(m.Trees) == 0 {
		return errors.NewModelError("Model.Validate", "no trees", nil)
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(m.NumFeatures); err != nil {
			return err
		}
	}
	return nil
}
