package gbdt

import (
	"math/rand/v2"
	"sort"
)

// SamplingStrategy draws the per-tree row and feature subsets.
// A single seeded PCG stream drives both, so a fixed seed reproduces the
// exact sequence of subsets.
type SamplingStrategy struct {
	rng             *rand.Rand
	subsample       float64
	colsampleBytree float64
}

// NewSamplingStrategy creates a new sampling strategy
func NewSamplingStrategy(params TrainingParams) *SamplingStrategy {
	return &SamplingStrategy{
		rng:             rand.New(rand.NewPCG(params.Seed, params.Seed)),
		subsample:       params.Subsample,
		colsampleBytree: params.ColsampleBytree,
	}
}

// SampleFeatures returns the sorted feature indices a tree may split on.
// At least one feature is always selected.
func (s *SamplingStrategy) SampleFeatures(numFeatures int) []int {
	return s.sample(numFeatures, s.colsampleBytree)
}

// SampleInstances returns the sorted row indices a tree is grown on.
func (s *SamplingStrategy) SampleInstances(numInstances int) []int {
	return s.sample(numInstances, s.subsample)
}

func (s *SamplingStrategy) sample(n int, fraction float64) []int {
	if fraction >= 1.0 || fraction <= 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}

	k := int(float64(n) * fraction)
	if k < 1 {
		k = 1
	}

	// Partial Fisher-Yates shuffle
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}

	out := perm[:k]
	sort.Ints(out)
	return out
}
