package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/sklearn/gbdt"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openStore(t)

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	params := gbdt.DefaultParams()
	params.LogEvery = 10
	rec := &RunRecord{
		StartedAt:    start,
		FinishedAt:   start.Add(90 * time.Second),
		Status:       StatusSucceeded,
		DatasetPath:  "heart.csv",
		Rows:         303,
		FeatureNames: []string{"age", "sex", "trestbps", "fbs"},
		Params:       params,
		CV: &gbdt.CVReport{
			NSplits:  10,
			Accuracy: gbdt.MetricSummary{Mean: 0.7, Std: 0.05, N: 10},
		},
		ArtifactPath: "models/heart.bin",
		Checksum:     "abc",
	}
	require.NoError(t, s.Put(rec))
	require.NotEmpty(t, rec.ID)

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Rows, got.Rows)
	assert.Equal(t, rec.Params, got.Params)
	assert.Equal(t, 10, got.Params.LogEvery)
	assert.Equal(t, 0.7, got.CV.Accuracy.Mean)
	assert.True(t, rec.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, 90*time.Second, got.Duration())

	_, err = s.Get("missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		status := StatusSucceeded
		if i == 4 {
			status = StatusFailed
		}
		rec := &RunRecord{Rows: i, Status: status}
		require.NoError(t, s.Put(rec))
		ids = append(ids, rec.ID)
	}

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 5)
	for i, r := range runs {
		assert.Equal(t, ids[4-i], r.ID)
	}

	limited, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Rows, "failed runs are skipped")
}

func TestLatestEmpty(t *testing.T) {
	s := openStore(t)
	_, err := s.Latest()
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(&RunRecord{Status: StatusSucceeded, Rows: 9}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 9, runs[0].Rows)
}
