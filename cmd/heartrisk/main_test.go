package main

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/heartrisk/internal/registry"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	r := rand.New(rand.NewPCG(3, 3))
	var csv strings.Builder
	csv.WriteString("id,age,sex,cp,trestbps,fbs,thal\n")
	for i := 0; i < 90; i++ {
		age := 30 + r.IntN(45)
		sex := r.IntN(2)
		thal := 0
		if age > 52 || (sex == 1 && r.Float64() < 0.4) {
			thal = 1
		}
		fmt.Fprintf(&csv, "%d,%d,%d,%d,%d,%d,%d\n", i, age, sex, r.IntN(4), 100+r.IntN(80), r.IntN(2), thal)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "heart.csv"), []byte(csv.String()), 0o644))

	yaml := fmt.Sprintf(`log:
  level: error
data:
  path: %[1]s/heart.csv
training:
  folds: 3
  params:
    n_estimators: 15
    max_depth: 3
    learning_rate: 0.1
model:
  path: %[1]s/models/heart.bin
registry:
  path: %[1]s/runs.db
`, dir)
	cfgPath := filepath.Join(dir, "heartrisk.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTrainExplainRuns(t *testing.T) {
	cfgPath := writeFixture(t)
	dir := filepath.Dir(cfgPath)

	out, err := run(t, "train", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Cross-validation (3 folds")
	assert.FileExists(t, filepath.Join(dir, "models", "heart.bin"))

	chart := filepath.Join(dir, "importance.svg")
	out, err = run(t, "explain", "--config", cfgPath, "--plot", chart)
	require.NoError(t, err, out)
	assert.Contains(t, out, "MEAN |SHAP|")
	assert.Contains(t, out, "trestbps")
	assert.FileExists(t, chart)

	out, err = run(t, "runs", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, registry.StatusSucceeded)

	store, err := registry.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	latest, err := store.Latest()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err = run(t, "runs", latest.ID, "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, `"id": "`+latest.ID+`"`)
}

func TestEvaluate(t *testing.T) {
	cfgPath := writeFixture(t)

	out, err := run(t, "evaluate", "--config", cfgPath, "--folds", "4")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Cross-validation (4 folds")

	out, err = run(t, "evaluate", "--config", cfgPath, "--json")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"n_splits": 3`)

	_, err = os.Stat(filepath.Join(filepath.Dir(cfgPath), "models", "heart.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestBadConfig(t *testing.T) {
	_, err := run(t, "evaluate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
