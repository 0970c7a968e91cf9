package gbdt

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func TestTrainerBasic(t *testing.T) {
	X, y := makeHeartData(200, 1)

	trainer := NewTrainer(smallParams())
	require.NoError(t, trainer.Fit(X, y))

	model := trainer.GetModel()
	require.NotNil(t, model)
	assert.Len(t, model.Trees, 30)
	assert.Equal(t, 4, model.NumFeatures)
	assert.Equal(t, ObjectiveBinaryLogistic, model.Objective)

	for _, tree := range model.Trees {
		assert.LessOrEqual(t, tree.MaxDepth, 3)
		assert.Greater(t, tree.NumLeaves, 0)
		for i, node := range tree.Nodes {
			assert.Equal(t, i, node.NodeID)
			if !node.IsLeaf() {
				assert.Greater(t, node.LeftChild, i)
				assert.Greater(t, node.RightChild, i)
				assert.Greater(t, node.Gain, splitEpsilon)
			}
		}
	}

	// training loss should go down
	require.Len(t, trainer.EvalHistory, 30)
	assert.Less(t, trainer.EvalHistory[29], trainer.EvalHistory[0])
}

func TestTrainerInitScore(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{0, 0, 0, 1})

	p := smallParams()
	p.NumIterations = 1
	trainer := NewTrainer(p)
	require.NoError(t, trainer.Fit(X, y))

	// logit(0.25)
	assert.InDelta(t, math.Log(0.25/0.75), trainer.GetModel().InitScore, 1e-12)
}

func TestTrainerDeterminism(t *testing.T) {
	X, y := makeHeartData(150, 3)

	t1 := NewTrainer(smallParams())
	t2 := NewTrainer(smallParams())
	require.NoError(t, t1.Fit(X, y))
	require.NoError(t, t2.Fit(X, y))

	assert.Equal(t, t1.GetModel().Trees, t2.GetModel().Trees)

	other := smallParams()
	other.Seed = 7
	t3 := NewTrainer(other)
	require.NoError(t, t3.Fit(X, y))
	assert.NotEqual(t, t1.GetModel().Trees, t3.GetModel().Trees)
}

func TestTrainerValidation(t *testing.T) {
	X, y := makeHeartData(20, 1)

	t.Run("non-binary labels", func(t *testing.T) {
		bad := mat.DenseCopyOf(y)
		bad.Set(3, 0, 2)
		err := NewTrainer(smallParams()).Fit(X, bad)
		require.Error(t, err)
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("NaN feature", func(t *testing.T) {
		bad := mat.DenseCopyOf(X)
		bad.Set(0, 0, math.NaN())
		assert.Error(t, NewTrainer(smallParams()).Fit(bad, y))
	})

	t.Run("length mismatch", func(t *testing.T) {
		short := mat.NewDense(5, 1, nil)
		err := NewTrainer(smallParams()).Fit(X, short)
		var de *errors.DimensionError
		assert.True(t, errors.As(err, &de))
	})

	t.Run("bad params", func(t *testing.T) {
		p := smallParams()
		p.LearningRate = 0
		assert.Error(t, NewTrainer(p).Fit(X, y))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewTrainer(smallParams()).FitContext(ctx, X, y)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCalculateSplitGain(t *testing.T) {
	trainer := NewTrainer(TrainingParams{Lambda: 1, Gamma: 0})
	// G_L=-2,H_L=1  G_R=2,H_R=1  G=0,H=2
	gain := trainer.calculateSplitGain(-2, 1, 2, 1, 0, 2)
	assert.InDelta(t, 0.5*(4.0/2+4.0/2), gain, 1e-12)

	trainer.params.Gamma = 1
	assert.InDelta(t, 1.0, trainer.calculateSplitGain(-2, 1, 2, 1, 0, 2), 1e-12)

	assert.InDelta(t, 2.0/3.0, trainer.calculateLeafValue(-2, 2), 1e-12)
}

func TestSamplingStrategy(t *testing.T) {
	p := DefaultParams()
	s1 := NewSamplingStrategy(p)
	s2 := NewSamplingStrategy(p)

	rows := s1.SampleInstances(100)
	assert.Len(t, rows, 80)
	assert.Equal(t, rows, s2.SampleInstances(100))
	assert.IsIncreasing(t, rows)

	feats := s1.SampleFeatures(4)
	assert.Len(t, feats, 3)

	p.ColsampleBytree = 0.1
	assert.Len(t, NewSamplingStrategy(p).SampleFeatures(4), 1)

	p.Subsample = 1
	assert.Len(t, NewSamplingStrategy(p).SampleInstances(10), 10)
}

func TestTrainedModelRoutesMissingLeft(t *testing.T) {
	m, X, _, err := trainSmallModel(150)
	require.NoError(t, err)

	for ti, tree := range m.Trees {
		for _, n := range tree.Nodes {
			if !n.IsLeaf() {
				assert.True(t, n.DefaultLeft, "tree %d node %d", ti, n.NodeID)
			}
		}
	}

	// a missing age takes every low-side branch, exactly like an age below any threshold
	missing := mat.Row(nil, 0, X)
	lowest := mat.Row(nil, 0, X)
	missing[0] = math.NaN()
	lowest[0] = -1e9

	got, err := m.RawScore(missing)
	require.NoError(t, err)
	want, err := m.RawScore(lowest)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
